package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/faanross/simulacra_lsb/internal/carrier"
	"github.com/faanross/simulacra_lsb/internal/chunker"
	"github.com/faanross/simulacra_lsb/internal/decoder"
	"github.com/faanross/simulacra_lsb/internal/dnsserver"
	"github.com/faanross/simulacra_lsb/internal/encoder"
	"github.com/faanross/simulacra_lsb/internal/scrypto"
	"github.com/faanross/simulacra_lsb/internal/spec"
	"github.com/faanross/simulacra_lsb/internal/stego"
)

const shutdownTimeout = 5 * time.Second

func (r *runner) keygen(c *cli.Context) error {
	generate := stego.GenerateKey
	if c.Bool("passphrase") {
		generate = r.derive
	}
	key, err := generate()
	if err != nil {
		return err
	}
	fmt.Println(scrypto.EncodeKey(key))
	r.log.Infof("Key fingerprint %s", scrypto.Fingerprint(key))
	return nil
}

func (r *runner) embed(c *cli.Context) error {
	imagePath, err := requireArg(c, "IMAGE")
	if err != nil {
		return err
	}
	message, err := readMessage(c)
	if err != nil {
		return err
	}

	session := stego.NewSession(r.config.Output.Dir, r.config.Output.Prefix)
	if err := session.SelectImage(imagePath); err != nil {
		return err
	}
	if hasKeySource(c) {
		if session.Key, err = r.readKey(c); err != nil {
			return err
		}
	} else {
		hex, err := session.NewKey()
		if err != nil {
			return err
		}
		fmt.Printf("Generated key (keep it, it is the only way back): %s\n", hex)
	}

	var written string
	if out := c.String("out"); out != "" {
		var blob []byte
		if blob, err = stego.Encrypt(message, session.Key); err == nil {
			written, err = stego.EmbedFile(imagePath, blob, out)
		}
	} else {
		written, err = session.Hide(message)
	}
	if err != nil {
		if spec.KindOf(err) == spec.KindCapacityExceeded {
			r.suggestCarrier(imagePath, message)
		}
		return err
	}

	r.log.WithField("key", scrypto.Fingerprint(session.Key)).Infof("Hid %d-byte message in %s", len(message), written)
	fmt.Println(written)
	return nil
}

// suggestCarrier logs how tall an image of the same width would need to be.
func (r *runner) suggestCarrier(imagePath, message string) {
	img, err := carrier.Load(imagePath)
	if err != nil {
		return
	}
	blobLen := spec.IV_SIZE + (len(message)/spec.BLOCK_SIZE+1)*spec.BLOCK_SIZE
	r.log.Warnf("%s holds at most %d bytes; this message needs %d (e.g. a %dx%d image)",
		imagePath, encoder.MaxPayload(img), blobLen, img.Width, encoder.MinimumCarrier(img.Width, blobLen))
}

func (r *runner) extract(c *cli.Context) error {
	imagePath, err := requireArg(c, "IMAGE")
	if err != nil {
		return err
	}

	tries := c.StringSlice("try")
	if len(tries) == 0 {
		session := stego.NewSession(r.config.Output.Dir, r.config.Output.Prefix)
		if session.Key, err = r.readKey(c); err != nil {
			return err
		}
		message, err := session.Reveal(imagePath)
		if err != nil {
			return err
		}
		fmt.Println(message)
		return nil
	}

	var keys [][]byte
	if hasKeySource(c) {
		key, err := r.readKey(c)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}
	for _, hex := range tries {
		key, err := scrypto.ParseKey(hex)
		if err != nil {
			return errors.Wrapf(err, "--try %q", hex)
		}
		keys = append(keys, key)
	}

	img, err := carrier.Load(imagePath)
	if err != nil {
		return err
	}
	attempts, err := stego.TryKeys(img, keys)
	if err != nil {
		return err
	}
	for _, a := range attempts {
		if a.Err != nil {
			r.log.Debugf("Key %d (%s) failed: %v", a.Index+1, scrypto.Fingerprint(keys[a.Index]), a.Err)
			continue
		}
		r.log.Infof("Key %d (%s) decrypted the message", a.Index+1, scrypto.Fingerprint(keys[a.Index]))
		fmt.Println(a.Message)
		return nil
	}
	return errors.Wrapf(spec.ErrDecryption, "none of %d keys worked", len(keys))
}

func (r *runner) analyze(c *cli.Context) error {
	imagePath, err := requireArg(c, "IMAGE")
	if err != nil {
		return err
	}
	img, err := carrier.Load(imagePath)
	if err != nil {
		return err
	}

	rep := decoder.Analyze(img)
	fmt.Printf("Image:       %s (%dx%d)\n", imagePath, rep.Width, rep.Height)
	fmt.Printf("Capacity:    %d bytes of ciphertext\n", encoder.MaxPayload(img))
	fmt.Printf("LSB zeros:   %d (%.2f%%)\n", rep.Zeros, rep.ZeroRatio)
	fmt.Printf("LSB ones:    %d\n", rep.Ones)
	fmt.Printf("LSB entropy: %.4f bits/byte\n", rep.Entropy)
	fmt.Printf("Channel avg: R=%d G=%d B=%d\n", rep.AvgR, rep.AvgG, rep.AvgB)
	if rep.LooksEncrypted() {
		fmt.Println("Verdict:     LSBs are close to 50/50, consistent with hidden ciphertext")
	} else {
		fmt.Println("Verdict:     LSB distribution looks natural")
	}
	if rep.UniformChannels() {
		fmt.Println("Note:        channel averages are unusually uniform")
	}
	return nil
}

func (r *runner) serve(c *cli.Context) error {
	dnsConfig := r.config.DNS
	if v := c.String("domain"); v != "" {
		dnsConfig.Domain = v
	}
	if v := c.String("addr"); v != "" {
		dnsConfig.Addr = v
	}
	if v := c.String("http"); v != "" {
		dnsConfig.HTTPAddr = v
	}
	if v := c.String("storage"); v != "" {
		dnsConfig.Storage = v
	}
	if c.IsSet("retention") {
		dnsConfig.Retention = c.Duration("retention")
	}

	var storage dnsserver.Storage = dnsserver.NewMemoryStorage()
	if dnsConfig.Storage != "" {
		fs, err := dnsserver.NewFileStorage(dnsConfig.Storage)
		if err != nil {
			return err
		}
		r.log.Infof("Persisting published images to %s", dnsConfig.Storage)
		storage = fs
	}

	server := dnsserver.New(dnsserver.Config{
		Domain:  dnsConfig.Domain,
		Addr:    dnsConfig.Addr,
		TTL:     dnsConfig.TTL,
		Chunker: chunker.NewChunker(chunker.Config{PayloadSize: dnsConfig.ChunkPayload}),
		Logger:  r.log,
	}, storage)

	for _, path := range c.StringSlice("zone") {
		if err := r.importZone(server, path, dnsConfig.Domain); err != nil {
			return err
		}
	}
	for _, path := range c.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "read image")
		}
		msg, err := server.Publish("", data)
		if err != nil {
			return errors.Wrapf(err, "publish %s", path)
		}
		fmt.Printf("%s\t%s\n", msg.ID, path)
	}

	if err := server.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dnsConfig.Retention > 0 {
		go server.Expire(ctx, dnsConfig.Retention, min(dnsConfig.Retention, time.Minute))
	}

	var api *http.Server
	if dnsConfig.HTTPAddr != "" {
		api = &http.Server{Addr: dnsConfig.HTTPAddr, Handler: server.APIHandler()}
		go func() {
			r.log.Infof("Upload API listening on %s", dnsConfig.HTTPAddr)
			if err := api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.log.Errorf("Upload API failed: %v", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	r.log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if api != nil {
		if err := api.Shutdown(shutdownCtx); err != nil {
			r.log.Warnf("Upload API shutdown: %v", err)
		}
	}
	stats := storage.GetStats()
	r.log.Infof("Served %d images (%d fetched at least once)", stats.TotalMessages, stats.Delivered)
	return server.Shutdown(shutdownCtx)
}

func (r *runner) importZone(server *dnsserver.Server, path, domain string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open zone file")
	}
	defer f.Close()

	messages, err := dnsserver.ReadZone(f, domain)
	if err != nil {
		return errors.Wrapf(err, "zone file %s", path)
	}
	imported, skipped, err := server.Import(messages)
	if err != nil {
		return err
	}
	r.log.Infof("Loaded %d images from %s (%d already present)", imported, path, skipped)
	return nil
}

func (r *runner) publish(c *cli.Context) error {
	if !c.Args().Present() {
		return errors.New("missing IMAGE argument")
	}
	id := c.String("id")
	if id != "" && c.NArg() > 1 {
		return errors.New("--id applies to a single image")
	}

	base := c.String("server")
	if base == "" {
		if r.config.DNS.HTTPAddr == "" {
			return errors.New("no API address: pass --server or set dns.http")
		}
		base = "http://" + r.config.DNS.HTTPAddr
	}
	uploader := dnsserver.NewUploader(strings.TrimSuffix(base, "/"), r.config.DNS.Timeout)

	for _, path := range c.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "read image")
		}
		info, err := uploader.Upload(context.Background(), id, data)
		if err != nil {
			return errors.Wrapf(err, "publish %s", path)
		}
		r.log.Infof("Published %s as %s in %d chunks", path, info.ID, info.Chunks)
		fmt.Printf("%s\t%s\n", info.ID, path)
	}
	return nil
}

func (r *runner) zone(c *cli.Context) error {
	imagePath, err := requireArg(c, "IMAGE")
	if err != nil {
		return err
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return errors.Wrap(err, "read image")
	}

	domain := r.config.DNS.Domain
	if v := c.String("domain"); v != "" {
		domain = v
	}
	msg, err := dnsserver.NewMessage(c.String("id"), data,
		chunker.NewChunker(chunker.Config{PayloadSize: r.config.DNS.ChunkPayload}))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := dnsserver.WriteZone(&buf, msg, domain, r.config.DNS.TTL); err != nil {
		return err
	}
	out := c.String("out")
	if out == "" {
		_, err := io.Copy(os.Stdout, &buf)
		return err
	}
	if err := atomic.WriteFile(out, &buf); err != nil {
		return errors.Wrapf(err, "write %s", out)
	}
	r.log.Infof("Wrote %d records for message %s to %s", len(msg.Chunks)+1, msg.ID, out)
	return nil
}

func (r *runner) fetch(c *cli.Context) error {
	id, err := requireArg(c, "ID")
	if err != nil {
		return err
	}
	out := c.String("out")
	if out == "" && !c.Bool("reveal") {
		return errors.New("nothing to do: pass --out, --reveal or both")
	}

	server := r.config.DNS.Addr
	if v := c.String("server"); v != "" {
		server = v
	}
	domain := r.config.DNS.Domain
	if v := c.String("domain"); v != "" {
		domain = v
	}

	var key []byte
	if c.Bool("reveal") {
		if key, err = r.readKey(c); err != nil {
			return err
		}
	}

	client := dnsserver.NewClient(server, domain, r.config.DNS.Timeout)
	client.Concurrency = r.config.DNS.Concurrency

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	data, err := client.Fetch(ctx, id)
	if err != nil {
		return err
	}
	r.log.Infof("Fetched %d bytes for %s in %v", len(data), id, time.Since(start).Round(time.Millisecond))

	if out != "" {
		if err := atomic.WriteFile(out, bytes.NewReader(data)); err != nil {
			return errors.Wrapf(err, "write %s", out)
		}
		fmt.Println(out)
	}
	if key == nil {
		return nil
	}

	blob, err := stego.ExtractBytes(data)
	if err != nil {
		return err
	}
	message, err := stego.Decrypt(blob, key)
	if err != nil {
		return err
	}
	fmt.Println(message)
	return nil
}

func requireArg(c *cli.Context, name string) (string, error) {
	if !c.Args().Present() {
		return "", errors.Errorf("missing %s argument", name)
	}
	if c.NArg() > 1 {
		return "", errors.Errorf("expected one %s argument, got %d", name, c.NArg())
	}
	return c.Args().First(), nil
}

func readMessage(c *cli.Context) (string, error) {
	text, file := c.String("message"), c.String("message-file")
	switch {
	case text != "" && file != "":
		return "", errors.New("pass --message or --message-file, not both")
	case text != "":
		return text, nil
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		return string(data), errors.Wrap(err, "read message")
	case file != "":
		data, err := os.ReadFile(file)
		return string(data), errors.Wrap(err, "read message")
	default:
		return "", errors.WithStack(stego.ErrEmptyMessage)
	}
}

func hasKeySource(c *cli.Context) bool {
	return c.String("key") != "" || c.String("key-file") != "" || c.Bool("passphrase")
}

// readKey takes the key from, in order: --key, --key-file, a passphrase
// prompt, or a hidden hex prompt.
func (r *runner) readKey(c *cli.Context) ([]byte, error) {
	switch {
	case c.String("key") != "":
		return scrypto.ParseKey(c.String("key"))
	case c.String("key-file") != "":
		data, err := os.ReadFile(c.String("key-file"))
		if err != nil {
			return nil, errors.Wrap(err, "read key file")
		}
		// Editors append a newline; a raw key may still start or end with spaces.
		return scrypto.ParseKey(strings.TrimRight(string(data), "\r\n"))
	case c.Bool("passphrase"):
		return r.derive()
	default:
		input, err := scrypto.ReadSecret("Key (hex): ")
		if err != nil {
			return nil, err
		}
		return scrypto.ParseKey(string(input))
	}
}

func (r *runner) derive() ([]byte, error) {
	passphrase, err := scrypto.ReadSecret("Passphrase: ")
	if err != nil {
		return nil, err
	}
	if len(passphrase) == 0 {
		return nil, errors.New("empty passphrase")
	}
	return scrypto.DeriveKey(passphrase, []byte(r.config.Key.Salt), r.config.Key.Iterations), nil
}
