package config

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func testXpub(t *testing.T, seed byte) string {
	t.Helper()

	master, err := hdkeychain.NewMaster([]byte{seed, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	neutered, err := master.Neuter()
	require.NoError(t, err)

	return neutered.String()
}

func TestParseResolvesParticipantsAndChainParams(t *testing.T) {
	stakeholder := testXpub(t, 1)
	manager := testXpub(t, 2)

	args := []string{
		"--network", "regtest",
		"--stakeholder_xpub", stakeholder,
		"--manager_xpub", manager,
		"--our_stakeholder_xpub", stakeholder,
		"--emergency_address", "bcrt1qexampleaddress",
	}

	cfg, err := Parse(args)
	require.NoError(t, err)

	require.Equal(t, &chaincfg.RegressionNetParams, cfg.ChainParams())

	participants := cfg.Participants()
	require.Len(t, participants.StakeholderXpubs, 1)
	require.Len(t, participants.ManagerXpubs, 1)
	require.True(t, participants.IsStakeholder)
	require.NotNil(t, participants.OurStakeholderXpub)
}

func TestParseRejectsXpubForWrongNetwork(t *testing.T) {
	mainnetXpub := testXpubForNet(t, 3, &chaincfg.MainNetParams)

	args := []string{
		"--network", "regtest",
		"--stakeholder_xpub", mainnetXpub,
	}

	_, err := Parse(args)
	require.Error(t, err)
}

func testXpubForNet(t *testing.T, seed byte, params *chaincfg.Params) string {
	t.Helper()

	master, err := hdkeychain.NewMaster([]byte{seed, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, params)
	require.NoError(t, err)

	neutered, err := master.Neuter()
	require.NoError(t, err)

	return neutered.String()
}
