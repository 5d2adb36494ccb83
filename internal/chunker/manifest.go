package chunker

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const manifestVersion = "1"

var ErrBadManifest = errors.New("malformed manifest")

// Manifest describes a chunked message so a receiver knows how many chunks
// to fetch and how to verify the result.
type Manifest struct {
	Total  int
	Size   int
	Digest string // hex SHA-256 of the whole message
}

// NewManifest describes data split into chunks.
func NewManifest(data []byte, chunks []Chunk) Manifest {
	sum := sha256.Sum256(data)
	return Manifest{Total: len(chunks), Size: len(data), Digest: hex.EncodeToString(sum[:])}
}

// String renders the manifest as TXT text.
func (m Manifest) String() string {
	return fmt.Sprintf("v=%s;total=%d;size=%d;sha256=%s", manifestVersion, m.Total, m.Size, m.Digest)
}

// ParseManifest reads the TXT text produced by Manifest.String.
func ParseManifest(s string) (*Manifest, error) {
	fields := make(map[string]string)
	for _, part := range strings.Split(strings.TrimSpace(s), ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, errors.Wrapf(ErrBadManifest, "field %q", part)
		}
		fields[k] = v
	}
	if fields["v"] != manifestVersion {
		return nil, errors.Wrapf(ErrBadManifest, "version %q", fields["v"])
	}

	m := &Manifest{Digest: fields["sha256"]}
	var err error
	if m.Total, err = strconv.Atoi(fields["total"]); err != nil || m.Total <= 0 || m.Total > math.MaxUint16 {
		return nil, errors.Wrapf(ErrBadManifest, "total %q", fields["total"])
	}
	if m.Size, err = strconv.Atoi(fields["size"]); err != nil || m.Size < 0 || m.Size > m.Total*MaxPayloadSize {
		return nil, errors.Wrapf(ErrBadManifest, "size %q for %d chunks", fields["size"], m.Total)
	}
	if len(m.Digest) != sha256.Size*2 {
		return nil, errors.Wrapf(ErrBadManifest, "digest %q", m.Digest)
	}
	return m, nil
}

// Verify checks reassembled data against the manifest.
func (m Manifest) Verify(data []byte) error {
	if len(data) != m.Size {
		return errors.Errorf("size mismatch: got %d bytes, manifest says %d", len(data), m.Size)
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != m.Digest {
		return errors.New("sha256 mismatch")
	}
	return nil
}

// NewMessageID returns a random 16-character hex ID, safe as a DNS label.
func NewMessageID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "message ID generation failed")
	}
	return hex.EncodeToString(b), nil
}

// ChunkName is the record name of chunk seq of message id under domain.
func ChunkName(seq int, id, domain string) string {
	return fmt.Sprintf("c-%d-%s.%s", seq, id, fqdn(domain))
}

// ManifestName is the record name of the manifest of message id.
func ManifestName(id, domain string) string {
	return fmt.Sprintf("m-%s.%s", id, fqdn(domain))
}

// ValidMessageID reports whether id can be used inside a record name.
func ValidMessageID(id string) bool {
	if id == "" || len(id) > 48 {
		return false
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func fqdn(domain string) string {
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	if !strings.HasSuffix(domain, ".") {
		domain += "."
	}
	return domain
}

// Reassemble joins chunks and checks the result against the manifest.
func (m Manifest) Reassemble(chunks []Chunk) ([]byte, error) {
	data, err := Reassemble(chunks)
	if err != nil {
		return nil, err
	}
	if len(chunks) > 0 && int(chunks[0].Total) != m.Total {
		return nil, errors.Wrapf(ErrBadManifest, "chunks report %d total, manifest %d", chunks[0].Total, m.Total)
	}
	if err := m.Verify(data); err != nil {
		return nil, err
	}
	return data, nil
}

// RecordKind tells manifest records from chunk records.
type RecordKind int

const (
	ChunkRecord RecordKind = iota + 1
	ManifestRecord
)

// Record identifies what a query name refers to.
type Record struct {
	Kind      RecordKind
	Sequence  int
	MessageID string
}

// ParseRecordName maps a query name under domain back to the record it
// names. ok is false for names outside the domain or of unknown shape.
func ParseRecordName(name, domain string) (rec Record, ok bool) {
	name = strings.ToLower(name)
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	label, found := strings.CutSuffix(name, "."+fqdn(domain))
	if !found || label == "" || strings.Contains(label, ".") {
		return Record{}, false
	}

	if id, found := strings.CutPrefix(label, "m-"); found {
		if !ValidMessageID(id) {
			return Record{}, false
		}
		return Record{Kind: ManifestRecord, MessageID: id}, true
	}

	rest, found := strings.CutPrefix(label, "c-")
	if !found {
		return Record{}, false
	}
	seqText, id, found := strings.Cut(rest, "-")
	if !found || !ValidMessageID(id) {
		return Record{}, false
	}
	seq, err := strconv.Atoi(seqText)
	if err != nil || seq < 0 || strconv.Itoa(seq) != seqText {
		return Record{}, false
	}
	return Record{Kind: ChunkRecord, Sequence: seq, MessageID: id}, true
}
