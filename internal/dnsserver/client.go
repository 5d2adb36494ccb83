package dnsserver

import (
	"context"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/faanross/simulacra_lsb/internal/chunker"
)

const defaultConcurrency = 4

// Client fetches published messages from a DNS server.
type Client struct {
	Server      string // host:port to query
	Domain      string
	Retries     int // extra attempts per query after a transport error
	Concurrency int // chunk queries in flight

	dns *dns.Client
}

// NewClient creates a UDP client querying server for records under domain.
func NewClient(server, domain string, timeout time.Duration) *Client {
	return &Client{
		Server:      server,
		Domain:      dns.Fqdn(domain),
		Retries:     2,
		Concurrency: defaultConcurrency,
		dns:         &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// Fetch downloads message id: the manifest first, then every chunk. The
// result is verified against the manifest before it is returned.
func (c *Client) Fetch(ctx context.Context, id string) ([]byte, error) {
	if !chunker.ValidMessageID(id) {
		return nil, errors.Errorf("invalid message ID %q", id)
	}

	text, err := c.Query(ctx, chunker.ManifestName(id, c.Domain))
	if err != nil {
		return nil, errors.Wrap(err, "fetch manifest")
	}
	manifest, err := chunker.ParseManifest(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]chunker.Chunk, manifest.Total)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Concurrency, 1))
	for seq := range manifest.Total {
		g.Go(func() error {
			text, err := c.Query(ctx, chunker.ChunkName(seq, id, c.Domain))
			if err != nil {
				return errors.Wrapf(err, "fetch chunk %d", seq)
			}
			ch, err := chunker.DecodeChunk(text)
			if err != nil {
				return err
			}
			if int(ch.Sequence) != seq {
				return errors.Errorf("record for chunk %d holds chunk %d", seq, ch.Sequence)
			}
			chunks[seq] = *ch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return manifest.Reassemble(chunks)
}

// Query returns the TXT text at name, joining multi-string records.
func (c *Client) Query(ctx context.Context, name string) (string, error) {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(name), dns.TypeTXT)

	var lastErr error
	for attempt := 0; attempt <= max(c.Retries, 0); attempt++ {
		resp, _, err := c.dns.ExchangeContext(ctx, q, c.Server)
		if err != nil {
			if ctx.Err() != nil {
				return "", errors.WithStack(ctx.Err())
			}
			lastErr = err
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return "", errors.Wrap(ErrNotFound, name)
		default:
			return "", errors.Errorf("query %s: %s", name, dns.RcodeToString[resp.Rcode])
		}

		for _, rr := range resp.Answer {
			if txt, ok := rr.(*dns.TXT); ok {
				return strings.Join(txt.Txt, ""), nil
			}
		}
		return "", errors.Wrapf(ErrNotFound, "no TXT answer for %s", name)
	}
	return "", errors.Wrapf(lastErr, "query %s", name)
}
