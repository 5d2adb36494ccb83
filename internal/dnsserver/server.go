// Package dnsserver publishes files as DNS TXT records and fetches them
// back. Each file is chunked and served as one manifest record plus one
// record per chunk, under a single domain:
//
//	m-<id>.<domain>       manifest (chunk count, size, SHA-256)
//	c-<seq>-<id>.<domain> chunk seq
package dnsserver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"

	"github.com/faanross/simulacra_lsb/internal/chunker"
	"github.com/faanross/simulacra_lsb/internal/logger"
)

// Config for a Server.
type Config struct {
	Domain  string
	Addr    string
	TTL     uint32
	Chunker *chunker.Chunker
	Logger  logger.Logger
}

// Server answers TXT queries for published messages.
type Server struct {
	config  Config
	storage Storage
	logger  logger.Logger

	mu  sync.Mutex
	dns *dns.Server
	pc  net.PacketConn
}

// New creates a Server answering from storage.
func New(config Config, storage Storage) *Server {
	if config.Chunker == nil {
		config.Chunker = chunker.NewChunker(chunker.Config{})
	}
	if config.Logger == nil {
		config.Logger = logger.NewLogger(0)
	}
	config.Domain = dns.Fqdn(config.Domain)
	return &Server{
		config:  config,
		storage: storage,
		logger:  config.Logger,
	}
}

// NewMessage chunks data into a message with the given ID, generating one
// when id is empty.
func NewMessage(id string, data []byte, c *chunker.Chunker) (*Message, error) {
	if id == "" {
		var err error
		if id, err = chunker.NewMessageID(); err != nil {
			return nil, err
		}
	}
	if !chunker.ValidMessageID(id) {
		return nil, errors.Errorf("invalid message ID %q: use lowercase letters and digits", id)
	}

	chunks, err := c.Split(data)
	if err != nil {
		return nil, err
	}
	msg := &Message{
		ID:       id,
		Manifest: chunker.NewManifest(data, chunks).String(),
		Chunks:   make([]string, len(chunks)),
	}
	for i, ch := range chunks {
		msg.Chunks[i] = ch.Encoded
	}
	return msg, nil
}

// Publish chunks data and stores it under id, generating an ID when id is
// empty. It returns the stored message.
func (s *Server) Publish(id string, data []byte) (*Message, error) {
	msg, err := NewMessage(id, data, s.config.Chunker)
	if err != nil {
		return nil, err
	}
	if err := s.storage.StoreMessage(msg); err != nil {
		return nil, err
	}
	s.logger.WithField("id", msg.ID).Infof("Published %d bytes as %d chunks under %s",
		len(data), len(msg.Chunks), chunker.ManifestName(msg.ID, s.config.Domain))
	return s.storage.GetMessage(msg.ID)
}

// Import stores already chunked messages, such as those read from a zone
// file. Messages whose ID is taken are skipped and counted as such.
func (s *Server) Import(messages []*Message) (imported, skipped int, err error) {
	for _, msg := range messages {
		if err := s.storage.StoreMessage(msg); err != nil {
			if errors.Is(err, ErrExists) {
				s.logger.Warnf("Skipping message %s: already published", msg.ID)
				skipped++
				continue
			}
			return imported, skipped, err
		}
		imported++
	}
	return imported, skipped, nil
}

// ServeDNS implements dns.Handler.
func (s *Server) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	if err := w.WriteMsg(s.answer(r)); err != nil {
		s.logger.Warnf("Failed to write DNS response: %v", err)
	}
}

func (s *Server) answer(r *dns.Msg) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetReply(r)
	msg.Authoritative = true

	for _, q := range r.Question {
		rec, ok := chunker.ParseRecordName(q.Name, s.config.Domain)
		if !ok {
			s.logger.Debugf("No such name %s", q.Name)
			msg.Rcode = dns.RcodeNameError
			continue
		}

		if q.Qtype != dns.TypeTXT && q.Qtype != dns.TypeANY {
			continue
		}

		txt, err := s.lookup(rec)
		if err != nil {
			s.logger.Debugf("Miss for %s: %v", q.Name, err)
			msg.Rcode = dns.RcodeNameError
			continue
		}
		msg.Answer = append(msg.Answer, &dns.TXT{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeTXT,
				Class:  dns.ClassINET,
				Ttl:    s.config.TTL,
			},
			Txt: []string{txt},
		})
	}
	return msg
}

func (s *Server) lookup(rec chunker.Record) (string, error) {
	if rec.Kind == chunker.ChunkRecord {
		return s.storage.GetChunk(rec.MessageID, rec.Sequence)
	}

	manifest, err := s.storage.GetManifest(rec.MessageID)
	if err != nil {
		return "", err
	}
	if err := s.storage.MarkAsDelivered(rec.MessageID); err != nil {
		return "", err
	}
	s.logger.WithField("id", rec.MessageID).Info("Manifest fetched")
	return manifest, nil
}

// Start binds the UDP socket and serves in the background. It returns once
// the server is ready to answer.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dns != nil {
		return errors.New("server already started")
	}

	pc, err := net.ListenPacket("udp", s.config.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.config.Addr)
	}

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		Handler:           s,
		NotifyStartedFunc: func() { close(started) },
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ActivateAndServe()
	}()

	select {
	case <-started:
	case err := <-errc:
		pc.Close()
		return errors.Wrap(err, "start DNS server")
	}

	s.dns = srv
	s.pc = pc
	s.logger.Infof("DNS server listening on %s/udp for %s", pc.LocalAddr(), s.config.Domain)
	return nil
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pc == nil {
		return ""
	}
	return s.pc.LocalAddr().String()
}

// Shutdown stops the server, waiting for in-flight queries until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.dns
	s.dns, s.pc = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.ShutdownContext(ctx)
}

// Expire removes messages older than retention every interval until ctx
// is done.
func (s *Server) Expire(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.storage.CleanExpired(retention)
			if err != nil {
				s.logger.Errorf("Failed to clean expired messages: %v", err)
				continue
			}
			if removed > 0 {
				s.logger.Infof("Expired %d messages", removed)
			}
		}
	}
}
