package vaultdb

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/tlv"

	"github.com/vaultd-project/vaultd/vault"
)

// serializeVault writes a Vault record in the fixed field order
// id||outpoint||amount||derivIndex||status||updatedAt, following
// channeldb's read/write-one-field-at-a-time style rather than a generic
// encoder.
func serializeVault(v *vault.Vault) []byte {
	var buf bytes.Buffer
	var scratch [8]byte

	byteOrder.PutUint64(scratch[:], v.ID)
	buf.Write(scratch[:])

	buf.Write(v.DepositOutpoint.Hash[:])
	byteOrder.PutUint32(scratch[:4], v.DepositOutpoint.Index)
	buf.Write(scratch[:4])

	byteOrder.PutUint64(scratch[:], uint64(v.Amount))
	buf.Write(scratch[:])

	byteOrder.PutUint32(scratch[:4], v.DerivationIndex)
	buf.Write(scratch[:4])

	buf.WriteByte(byte(v.Status))

	byteOrder.PutUint64(scratch[:], uint64(v.UpdatedAt))
	buf.Write(scratch[:])

	return buf.Bytes()
}

// deserializeVault is serializeVault's inverse.
func deserializeVault(raw []byte) (*vault.Vault, error) {
	r := bytes.NewReader(raw)
	var scratch [8]byte

	v := &vault.Vault{}

	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return nil, err
	}
	v.ID = byteOrder.Uint64(scratch[:])

	if _, err := io.ReadFull(r, v.DepositOutpoint.Hash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, scratch[:4]); err != nil {
		return nil, err
	}
	v.DepositOutpoint.Index = byteOrder.Uint32(scratch[:4])

	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return nil, err
	}
	v.Amount = btcutil.Amount(byteOrder.Uint64(scratch[:]))

	if _, err := io.ReadFull(r, scratch[:4]); err != nil {
		return nil, err
	}
	v.DerivationIndex = byteOrder.Uint32(scratch[:4])

	statusByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	v.Status = vault.Status(statusByte)

	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return nil, err
	}
	v.UpdatedAt = int64(byteOrder.Uint64(scratch[:]))

	return v, nil
}

// Presigned-tx blob TLV field types. Values must stay stable and
// monotonically assigned: a new field is always added with the next
// unused type, never by reusing or reordering an existing one. Types 2
// and 3 (formerly a hand-rolled unsigned-tx-plus-sigs pair, retired in
// favor of a single BIP174 packet blob) are intentionally skipped rather
// than reused.
const (
	typeRole            tlv.Type = 0
	typeFullySigned     tlv.Type = 1
	typeRequiredSigners tlv.Type = 4
	typePacketBlob      tlv.Type = 5
)

// serializePresignedTx TLV-encodes a PresignedTx row: role, fully_signed,
// required_signers, and the full BIP174 PSBT bytes. The whole packet is
// stored verbatim (not just the unsigned tx plus a hand-packed sig list)
// so WitnessUtxo/WitnessScript/PartialSigs all round-trip losslessly
// through psbt.Packet's own wire format rather than a partial re-encoding
// of it.
func serializePresignedTx(p *vault.PresignedTx) ([]byte, error) {
	var packetBuf bytes.Buffer
	if err := p.Packet.Serialize(&packetBuf); err != nil {
		return nil, fmt.Errorf("vaultdb: serializing PSBT: %w", err)
	}
	packetBlob := packetBuf.Bytes()

	role := uint8(p.Role)
	fullySigned := uint8(0)
	if p.FullySigned {
		fullySigned = 1
	}
	requiredSigners := uint32(p.RequiredSigners)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeRole, &role),
		tlv.MakePrimitiveRecord(typeFullySigned, &fullySigned),
		tlv.MakePrimitiveRecord(typeRequiredSigners, &requiredSigners),
		tlv.MakeDynamicRecord(
			typePacketBlob, &packetBlob,
			func() uint64 { return uint64(len(packetBlob)) },
			tlv.EVarBytes, tlv.DVarBytes,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("vaultdb: building TLV stream: %w", err)
	}

	var out bytes.Buffer
	if err := stream.Encode(&out); err != nil {
		return nil, fmt.Errorf("vaultdb: encoding presigned tx: %w", err)
	}

	return out.Bytes(), nil
}

// deserializePresignedTx is serializePresignedTx's inverse.
func deserializePresignedTx(rowID uint64, raw []byte) (*vault.PresignedTx, error) {
	var (
		role            uint8
		fullySigned     uint8
		requiredSigners uint32
		packetBlob      []byte
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeRole, &role),
		tlv.MakePrimitiveRecord(typeFullySigned, &fullySigned),
		tlv.MakePrimitiveRecord(typeRequiredSigners, &requiredSigners),
		tlv.MakeDynamicRecord(
			typePacketBlob, &packetBlob,
			func() uint64 { return uint64(len(packetBlob)) },
			tlv.EVarBytes, tlv.DVarBytes,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("vaultdb: building TLV stream: %w", err)
	}

	if err := stream.Decode(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("vaultdb: decoding presigned tx: %w", err)
	}

	packet, err := psbt.NewFromRawBytes(bytes.NewReader(packetBlob), false)
	if err != nil {
		return nil, fmt.Errorf("vaultdb: decoding PSBT: %w", err)
	}

	return &vault.PresignedTx{
		RowID:           rowID,
		Role:            vault.Role(role),
		Packet:          packet,
		FullySigned:     fullySigned == 1,
		RequiredSigners: int(requiredSigners),
	}, nil
}

// serializeTip writes a BlockchainTip as height(4)||blockhash(32).
func serializeTip(tip *vault.BlockchainTip) []byte {
	var buf bytes.Buffer
	var scratch [4]byte
	byteOrder.PutUint32(scratch[:], uint32(tip.Height))
	buf.Write(scratch[:])
	buf.Write(tip.BlockHash[:])
	return buf.Bytes()
}

// deserializeTip is serializeTip's inverse.
func deserializeTip(raw []byte) (*vault.BlockchainTip, error) {
	if len(raw) != 4+chainhash.HashSize {
		return nil, fmt.Errorf("vaultdb: malformed tip record (%d bytes)", len(raw))
	}
	tip := &vault.BlockchainTip{
		Height: int32(byteOrder.Uint32(raw[:4])),
	}
	copy(tip.BlockHash[:], raw[4:])
	return tip, nil
}
