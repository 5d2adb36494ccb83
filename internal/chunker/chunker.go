// Package chunker splits files into self-describing fragments that fit a
// single DNS TXT string, and puts them back together.
//
// Each chunk is base32 text of a fixed header followed by payload:
//
//	Magic(4) | Sequence(2) | Total(2) | CRC32(4) | Payload(<= PayloadSize)
//
// Chunks carry their own position and checksum, so they survive the
// out-of-order and lossy delivery DNS gives us.
package chunker

import (
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const (
	// MaxTXTString is the DNS limit on one TXT character-string.
	MaxTXTString = 255

	// SafeChunkSize leaves headroom under MaxTXTString for resolvers that
	// quote or escape.
	SafeChunkSize = 250

	// HeaderSize is the fixed per-chunk header.
	HeaderSize = 12

	// MaxPayloadSize is the most raw payload that still encodes within
	// SafeChunkSize: base32 expands 5 bytes to 8 characters.
	MaxPayloadSize = SafeChunkSize*5/8 - HeaderSize

	// ChunkMagic identifies our chunk format ("SIMC").
	ChunkMagic = 0x53494D43
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

var (
	ErrBadChunk      = errors.New("malformed chunk")
	ErrChecksum      = errors.New("chunk checksum mismatch")
	ErrMissingChunks = errors.New("missing chunks")
)

// Chunk is a single DNS-ready fragment.
type Chunk struct {
	Sequence uint16
	Total    uint16
	Checksum uint32
	Payload  []byte
	Encoded  string // TXT-ready text
}

// Config customises chunking.
type Config struct {
	PayloadSize int // raw bytes per chunk, at most MaxPayloadSize
}

// Chunker fragments and reassembles messages.
type Chunker struct {
	payloadSize int
}

// NewChunker creates a configured chunker instance
func NewChunker(config Config) *Chunker {
	size := config.PayloadSize
	if size <= 0 || size > MaxPayloadSize {
		size = MaxPayloadSize
	}
	return &Chunker{payloadSize: size}
}

// PayloadSize is the raw bytes carried per chunk.
func (c *Chunker) PayloadSize() int {
	return c.payloadSize
}

// Split fragments data into chunks in sequence order. Empty data still
// produces one (empty) chunk so that a message always has a record.
func (c *Chunker) Split(data []byte) ([]Chunk, error) {
	total := max((len(data)+c.payloadSize-1)/c.payloadSize, 1)
	if total > math.MaxUint16 {
		return nil, errors.Errorf("message too large: requires %d chunks (max %d)", total, math.MaxUint16)
	}

	chunks := make([]Chunk, 0, total)
	for seq := 0; seq < total; seq++ {
		start := seq * c.payloadSize
		end := min(start+c.payloadSize, len(data))
		payload := append([]byte(nil), data[start:end]...)
		chunks = append(chunks, newChunk(uint16(seq), uint16(total), payload))
	}
	return chunks, nil
}

func newChunk(seq, total uint16, payload []byte) Chunk {
	ch := Chunk{
		Sequence: seq,
		Total:    total,
		Checksum: crc32.ChecksumIEEE(payload),
		Payload:  payload,
	}
	raw := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(raw[0:4], ChunkMagic)
	binary.BigEndian.PutUint16(raw[4:6], seq)
	binary.BigEndian.PutUint16(raw[6:8], total)
	binary.BigEndian.PutUint32(raw[8:12], ch.Checksum)
	copy(raw[HeaderSize:], payload)
	ch.Encoded = encoding.EncodeToString(raw)
	return ch
}

// DecodeChunk parses and validates the TXT text of one chunk.
func DecodeChunk(encoded string) (*Chunk, error) {
	raw, err := encoding.DecodeString(strings.ToUpper(strings.TrimSpace(encoded)))
	if err != nil {
		return nil, errors.Wrap(ErrBadChunk, err.Error())
	}
	if len(raw) < HeaderSize {
		return nil, errors.Wrapf(ErrBadChunk, "%d bytes is shorter than the header", len(raw))
	}
	if magic := binary.BigEndian.Uint32(raw[0:4]); magic != ChunkMagic {
		return nil, errors.Wrapf(ErrBadChunk, "bad magic %08X", magic)
	}

	ch := &Chunk{
		Sequence: binary.BigEndian.Uint16(raw[4:6]),
		Total:    binary.BigEndian.Uint16(raw[6:8]),
		Checksum: binary.BigEndian.Uint32(raw[8:12]),
		Payload:  raw[HeaderSize:],
		Encoded:  encoded,
	}
	if ch.Total == 0 || ch.Sequence >= ch.Total {
		return nil, errors.Wrapf(ErrBadChunk, "sequence %d of %d", ch.Sequence, ch.Total)
	}
	if crc32.ChecksumIEEE(ch.Payload) != ch.Checksum {
		return nil, errors.Wrapf(ErrChecksum, "chunk %d", ch.Sequence)
	}
	return ch, nil
}

// Reassemble orders chunks, drops duplicates and joins their payloads.
// Every sequence number up to the advertised total must be present.
func Reassemble(chunks []Chunk) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, errors.WithStack(ErrMissingChunks)
	}
	total := chunks[0].Total

	bySeq := make(map[uint16]Chunk, len(chunks))
	for _, ch := range chunks {
		if ch.Total != total || ch.Sequence >= total {
			return nil, errors.Wrapf(ErrBadChunk, "chunk %d/%d in a message of %d", ch.Sequence, ch.Total, total)
		}
		if crc32.ChecksumIEEE(ch.Payload) != ch.Checksum {
			return nil, errors.Wrapf(ErrChecksum, "chunk %d", ch.Sequence)
		}
		bySeq[ch.Sequence] = ch
	}

	if missing := MissingSequences(bySeq, total); len(missing) > 0 {
		return nil, errors.Wrapf(ErrMissingChunks, "%v", missing)
	}

	seqs := make([]int, 0, len(bySeq))
	for seq := range bySeq {
		seqs = append(seqs, int(seq))
	}
	sort.Ints(seqs)

	var out []byte
	for _, seq := range seqs {
		out = append(out, bySeq[uint16(seq)].Payload...)
	}
	return out, nil
}

// MissingSequences lists the sequence numbers below total not in have.
func MissingSequences(have map[uint16]Chunk, total uint16) []uint16 {
	var missing []uint16
	for seq := uint16(0); seq < total; seq++ {
		if _, ok := have[seq]; !ok {
			missing = append(missing, seq)
		}
	}
	return missing
}

// Overhead is the encoding overhead of chunks over the raw size, in percent.
func Overhead(dataSize int, chunks []Chunk) float64 {
	if dataSize == 0 {
		return 0
	}
	encoded := 0
	for _, ch := range chunks {
		encoded += len(ch.Encoded)
	}
	return (float64(encoded)/float64(dataSize) - 1) * 100
}

func (ch Chunk) String() string {
	return fmt.Sprintf("chunk %d/%d (%d bytes)", ch.Sequence+1, ch.Total, len(ch.Payload))
}
