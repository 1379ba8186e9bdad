// Package config defines the daemon-wide settings object for vaultd:
// network parameters, participant keys, the on-disk store location, and
// the coordinator's connection details. Parse loads it from command-line
// flags only (no ini or config file is read); the package also owns the
// reader-writer guard the Control Dispatcher reads through, following
// lnd's own `config` struct convention of a flat, flag-tagged settings
// object threaded from `main` into every subsystem.
package config

import (
	"fmt"
	"sync"

	flags "github.com/jessevdk/go-flags"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/vaultd-project/vaultd/vault"
)

const defaultDataDir = "~/.vaultd"

// Config is the daemon-wide settings object. The Control Dispatcher takes
// a read lock for the duration of one request, per the "global config
// behind an RWMutex" design note (SPEC_FULL.md §5); nothing in the core
// mutates it; a future reconfiguration RPC would take the write lock, but
// that is out of scope for the core.
type Config struct {
	mu sync.RWMutex

	// Network is the bitcoin network this daemon watches: mainnet,
	// testnet3, signet, or regtest.
	Network string `long:"network" description:"Bitcoin network to operate on" default:"mainnet"`

	// DataDir is the directory the Persistence Gateway's bbolt file
	// lives in.
	DataDir string `long:"datadir" description:"Directory to store vaultd's persistent state" default:"~/.vaultd"`

	// LockTime is the absolute nLockTime set on every derived
	// transaction template.
	LockTime uint32 `long:"locktime" description:"Absolute nLockTime for derived transaction templates"`

	// UnvaultCSV is the relative CSV delay, in blocks, before the
	// stakeholders-only Unvault spend path (all stakeholders) matures.
	UnvaultCSV uint32 `long:"unvault_csv" description:"CSV delay in blocks on the Unvault output's revocation path" default:"144"`

	// EmergencyAddress is the fixed, out-of-band cold-storage address
	// every Emergency/UnvaultEmergency transaction pays to. Mandatory
	// for stakeholders.
	EmergencyAddress string `long:"emergency_address" description:"Emergency cold-storage address (stakeholders only)"`

	// StakeholderXpubs/ManagerXpubs are the base58-encoded extended
	// public keys of every participant, in the fixed order scripts are
	// built from.
	StakeholderXpubs []string `long:"stakeholder_xpub" description:"Stakeholder extended public key (repeatable)"`
	ManagerXpubs     []string `long:"manager_xpub" description:"Manager extended public key (repeatable)"`

	// OurStakeholderXpub, if set, marks the local participant as
	// holding the Stakeholder capability and must match one entry of
	// StakeholderXpubs.
	OurStakeholderXpub string `long:"our_stakeholder_xpub" description:"This participant's own stakeholder xpub, if it holds that role"`

	// CoordinatorAddr is the coordinator's TCP address.
	CoordinatorAddr string `long:"coordinator_addr" description:"host:port of the signature coordinator"`

	// CoordinatorNoisePubkey is the coordinator's hex-encoded X25519
	// static public key.
	CoordinatorNoisePubkey string `long:"coordinator_noise_pubkey" description:"Hex-encoded static Noise public key of the coordinator"`

	// OurNoisePrivkey is this participant's hex-encoded X25519 static
	// private key, used both to dial the coordinator and as its
	// advertised identity.
	OurNoisePrivkey string `long:"our_noise_privkey" description:"Hex-encoded static Noise private key for this participant"`

	// participants is the parsed form of StakeholderXpubs/ManagerXpubs/
	// OurStakeholderXpub, populated by Parse once the extended keys
	// have been decoded.
	participants *vault.Participants

	// chainParams is the *chaincfg.Params resolved from Network.
	chainParams *chaincfg.Params
}

// New returns a Config populated with its documented defaults, matching
// the distilled spec's "daemon-wide settings object" before any flags or
// ini file have been applied.
func New() *Config {
	return &Config{
		Network:    "mainnet",
		DataDir:    defaultDataDir,
		UnvaultCSV: 144,
	}
}

// Parse parses args (typically os.Args[1:]) onto a fresh Config, then
// decodes its extended public keys and resolves its chain parameters. It
// does not read an ini file; composing that with flag parsing the way
// lnd's loadConfig layers a default conf file under command-line overrides
// is process-bootstrap plumbing left to cmd/vaultd.
func Parse(args []string) (*Config, error) {
	cfg := New()

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if err := cfg.resolve(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// resolve decodes every xpub string field into *hdkeychain.ExtendedKey and
// resolves the network name into *chaincfg.Params, populating the
// unexported participants/chainParams fields the rest of the daemon reads
// through the accessor methods below.
func (c *Config) resolve() error {
	params, err := chainParamsForNetwork(c.Network)
	if err != nil {
		return err
	}
	c.chainParams = params

	stakeholders, err := decodeXpubs(c.StakeholderXpubs, params)
	if err != nil {
		return fmt.Errorf("decoding stakeholder_xpub: %w", err)
	}
	managers, err := decodeXpubs(c.ManagerXpubs, params)
	if err != nil {
		return fmt.Errorf("decoding manager_xpub: %w", err)
	}

	participants := &vault.Participants{
		StakeholderXpubs: stakeholders,
		ManagerXpubs:     managers,
	}

	if c.OurStakeholderXpub != "" {
		ours, err := hdkeychain.NewKeyFromString(c.OurStakeholderXpub)
		if err != nil {
			return fmt.Errorf("decoding our_stakeholder_xpub: %w", err)
		}
		if !ours.IsForNet(params) {
			return fmt.Errorf("our_stakeholder_xpub is not valid for network %s", params.Name)
		}
		participants.OurStakeholderXpub = ours
		participants.IsStakeholder = true
	}

	c.participants = participants
	return nil
}

func decodeXpubs(raw []string, params *chaincfg.Params) ([]*hdkeychain.ExtendedKey, error) {
	keys := make([]*hdkeychain.ExtendedKey, 0, len(raw))
	for _, s := range raw {
		key, err := hdkeychain.NewKeyFromString(s)
		if err != nil {
			return nil, err
		}
		if !key.IsForNet(params) {
			return nil, fmt.Errorf("xpub %s is not valid for network %s", s, params.Name)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func chainParamsForNetwork(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest", "simnet":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

// Participants returns the daemon's parsed participant key set under a
// read lock. The Control Dispatcher calls this once per request.
func (c *Config) Participants() *vault.Participants {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participants
}

// NetworkName returns the configured network name under a read lock.
func (c *Config) NetworkName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Network
}

// ChainParams returns the daemon's resolved chain parameters under a read
// lock.
func (c *Config) ChainParams() *chaincfg.Params {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chainParams
}

// VaultParams bundles the fixed, per-vault-independent settings the
// Transaction Chain Derivor needs, read once under a single read lock
// rather than one lock acquisition per field.
type VaultParams struct {
	EmergencyAddress string
	LockTime         uint32
	UnvaultCSV       uint32
	ChainParams      *chaincfg.Params
}

// Vault returns the subset of Config the Derivor needs.
func (c *Config) Vault() VaultParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return VaultParams{
		EmergencyAddress: c.EmergencyAddress,
		LockTime:         c.LockTime,
		UnvaultCSV:       c.UnvaultCSV,
		ChainParams:      c.chainParams,
	}
}
