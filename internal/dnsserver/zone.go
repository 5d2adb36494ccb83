package dnsserver

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/miekg/dns"
	"github.com/pkg/errors"

	"github.com/faanross/simulacra_lsb/internal/chunker"
)

// WriteZone renders msg as master-file TXT records under domain, for
// loading into an ordinary authoritative server.
func WriteZone(w io.Writer, msg *Message, domain string, ttl uint32) error {
	records := make([]dns.RR, 0, len(msg.Chunks)+1)
	records = append(records, txtRecord(chunker.ManifestName(msg.ID, domain), msg.Manifest, ttl))
	for seq, text := range msg.Chunks {
		records = append(records, txtRecord(chunker.ChunkName(seq, msg.ID, domain), text, ttl))
	}

	if _, err := fmt.Fprintf(w, "; message %s: %d chunks\n", msg.ID, len(msg.Chunks)); err != nil {
		return errors.WithStack(err)
	}
	for _, rr := range records {
		if _, err := fmt.Fprintln(w, rr.String()); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func txtRecord(name, text string, ttl uint32) *dns.TXT {
	return &dns.TXT{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: ttl},
		Txt: []string{text},
	}
}

// ReadZone parses TXT records under domain back into messages. Records
// outside the domain are skipped; every message must have its manifest
// and all of its chunks.
func ReadZone(r io.Reader, domain string) ([]*Message, error) {
	byID := make(map[string]*Message)
	chunks := make(map[string]map[int]string)
	get := func(id string) *Message {
		if byID[id] == nil {
			byID[id] = &Message{ID: id}
			chunks[id] = make(map[int]string)
		}
		return byID[id]
	}

	zp := dns.NewZoneParser(r, dns.Fqdn(domain), "")
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		txt, isTXT := rr.(*dns.TXT)
		if !isTXT {
			continue
		}
		rec, ok := chunker.ParseRecordName(txt.Hdr.Name, domain)
		if !ok {
			continue
		}
		msg := get(rec.MessageID)
		text := strings.Join(txt.Txt, "")
		if rec.Kind == chunker.ManifestRecord {
			msg.Manifest = text
		} else {
			chunks[rec.MessageID][rec.Sequence] = text
		}
	}
	if err := zp.Err(); err != nil {
		return nil, errors.Wrap(err, "parse zone")
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	messages := make([]*Message, 0, len(ids))
	for _, id := range ids {
		msg := byID[id]
		if msg.Manifest == "" {
			return nil, errors.Errorf("message %s has no manifest record", id)
		}
		manifest, err := chunker.ParseManifest(msg.Manifest)
		if err != nil {
			return nil, errors.Wrapf(err, "message %s", id)
		}
		msg.Chunks = make([]string, manifest.Total)
		for seq := range manifest.Total {
			text, ok := chunks[id][seq]
			if !ok {
				return nil, errors.Wrapf(chunker.ErrMissingChunks, "message %s chunk %d", id, seq)
			}
			msg.Chunks[seq] = text
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
