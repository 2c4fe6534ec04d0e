package main

import (
	"github.com/certevidence/ct"
	"github.com/certevidence/ct/audit"
	"github.com/certevidence/ct/extract"
	"github.com/certevidence/ct/loglist"
	"github.com/certevidence/ct/monitoring"
	"github.com/certevidence/ct/verify"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/ocsp"
	"golang.org/x/sync/errgroup"

	"bytes"
	"context"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"text/tabwriter"
	"time"
)

var errArgs = errors.New("Wrong number of arguments")

// loadCerts reads one or more certificates from a PEM or DER file.
func loadCerts(path string) ([][]byte, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !bytes.Contains(buf, []byte("-----BEGIN")) {
		return [][]byte{buf}, nil
	}
	var ders [][]byte
	for {
		var block *pem.Block
		block, buf = pem.Decode(buf)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			ders = append(ders, block.Bytes)
		}
	}
	if len(ders) == 0 {
		return nil, fmt.Errorf("%s: no certificates found", path)
	}
	return ders, nil
}

func loadRegistry(cc *cli.Context) (*ct.Registry, error) {
	var (
		list *loglist.List
		err  error
	)
	switch {
	case cc.String("log-list") != "":
		list, err = loglist.Load(cc.String("log-list"))
	case cc.String("log-list-url") != "":
		ctx, cancel := context.WithTimeout(cc.Context, 30*time.Second)
		defer cancel()
		list, err = loglist.Fetch(ctx, nil, cc.String("log-list-url"))
	default:
		return nil, errors.New("expect either log-list or log-list-url flag")
	}
	if err != nil {
		return nil, err
	}
	return list.Registry()
}

func printSCT(w io.Writer, sct *ct.SignedCertificateTimestamp) {
	fmt.Fprintf(w, "version\t%d\n", sct.Version)
	fmt.Fprintf(w, "log id\t%s\n", hex.EncodeToString(sct.LogID[:]))
	if sct.LogDescription != "" {
		fmt.Fprintf(w, "log\t%s\n", sct.LogDescription)
	}
	fmt.Fprintf(w, "timestamp\t%s\n", sct.Time().UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(w, "extensions\t%s\n", hex.EncodeToString(sct.Extensions))
	fmt.Fprintf(w, "hash alg\t%d\n", sct.Signature.HashAlgorithm)
	fmt.Fprintf(w, "sig alg\t%d\n", sct.Signature.SignatureAlgorithm)
	fmt.Fprintf(w, "signature\t%s\n", hex.EncodeToString(sct.Signature.Signature))
}

func handleInspectSCT(cc *cli.Context) error {
	if cc.Args().Len() != 1 {
		return errArgs
	}
	buf, err := os.ReadFile(cc.Args().Get(0))
	if err != nil {
		return err
	}
	var sct ct.SignedCertificateTimestamp
	if err := sct.UnmarshalBinary(buf); err != nil {
		return fmt.Errorf("parsing SCT: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 1, 1, 1, ' ', 0)
	defer w.Flush()
	printSCT(w, &sct)
	return nil
}

func handleInspectCert(cc *cli.Context) error {
	if cc.Args().Len() != 1 {
		return errArgs
	}
	ders, err := loadCerts(cc.Args().Get(0))
	if err != nil {
		return err
	}
	list, err := extract.EmbeddedSCTList(ders[0])
	if errors.Is(err, extract.ErrNotFound) {
		fmt.Println("no embedded SCTs")
		return nil
	}
	if err != nil {
		return err
	}
	var items ct.SCTList
	if err := items.UnmarshalBinary(list); err != nil {
		return fmt.Errorf("parsing SCT list: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 1, 1, 1, ' ', 0)
	defer w.Flush()
	for i, item := range items {
		if i != 0 {
			fmt.Fprintf(w, "\t\n")
		}
		var sct ct.SignedCertificateTimestamp
		if err := sct.UnmarshalBinary(item); err != nil {
			fmt.Fprintf(w, "sct %d\tundecodable: %v\n", i, err)
			continue
		}
		fmt.Fprintf(w, "sct %d\t\n", i)
		printSCT(w, &sct)
	}
	return nil
}

// fetchOCSP asks the leaf's OCSP responder for a fresh response.
func fetchOCSP(ctx context.Context, leafDER, issuerDER []byte) ([]byte, error) {
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		return nil, err
	}
	issuer, err := x509.ParseCertificate(issuerDER)
	if err != nil {
		return nil, err
	}
	if len(leaf.OCSPServer) == 0 {
		return nil, errors.New("certificate names no OCSP responder")
	}
	reqDER, err := ocsp.CreateRequest(leaf, issuer, nil)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		leaf.OCSPServer[0], bytes.NewReader(reqDER))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OCSP responder: unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func handleVerify(cc *cli.Context) error {
	if cc.Args().Len() == 0 {
		return errArgs
	}

	registry, err := loadRegistry(cc)
	if err != nil {
		return err
	}
	slog.Info("loaded known logs", "count", registry.Len())

	opts := []verify.Option{}
	if cc.String("audit-db") != "" {
		store, err := audit.Open(cc.String("audit-db"))
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, verify.WithSink(store))
	}
	if cc.String("metrics-addr") != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, verify.WithObserver(monitoring.New(reg)))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cc.String("metrics-addr"), mux); err != nil {
				slog.Error("metrics server", "err", err)
			}
		}()
	}
	verifier := verify.New(registry, opts...)

	var ocspDER []byte
	if cc.String("ocsp") != "" {
		ocspDER, err = os.ReadFile(cc.String("ocsp"))
		if err != nil {
			return err
		}
	}
	var tlsSCTs []byte
	if cc.String("tls-scts") != "" {
		tlsSCTs, err = os.ReadFile(cc.String("tls-scts"))
		if err != nil {
			return err
		}
	}

	var (
		mu     sync.Mutex
		sawBad bool
	)
	g, ctx := errgroup.WithContext(cc.Context)
	g.SetLimit(8)
	for _, path := range cc.Args().Slice() {
		path := path
		g.Go(func() error {
			ders, err := loadCerts(path)
			if err != nil {
				return err
			}
			in := verify.Input{
				LeafDER:      ders[0],
				OCSPResponse: ocspDER,
				TLSSCTList:   tlsSCTs,
			}
			if len(ders) > 1 {
				in.IssuerDER = ders[1]
			}
			if cc.Bool("fetch-ocsp") && in.OCSPResponse == nil && in.IssuerDER != nil {
				in.OCSPResponse, err = fetchOCSP(ctx, in.LeafDER, in.IssuerDER)
				if err != nil {
					slog.Warn("OCSP fetch failed", "cert", path, "err", err)
					in.OCSPResponse = nil
				}
			}
			verdicts, err := verifier.Verify(in)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			mu.Lock()
			defer mu.Unlock()
			w := tabwriter.NewWriter(os.Stdout, 1, 1, 1, ' ', 0)
			fmt.Fprintf(w, "%s\t%d SCTs\t\n", path, len(verdicts))
			for _, verdict := range verdicts {
				name := verdict.SCT.LogDescription
				if name == "" {
					name = hex.EncodeToString(verdict.SCT.LogID[:8])
				}
				fmt.Fprintf(w, "  %s\t%s\t%s\n", verdict.SCT.Origin,
					name, verdict.Status)
				if verdict.Status != ct.StatusOK {
					sawBad = true
				}
			}
			return w.Flush()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if sawBad {
		return errors.New("some SCTs did not verify")
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:  "ctverify",
		Usage: "check Certificate Transparency evidence",
		Commands: []*cli.Command{
			{
				Name:  "inspect",
				Usage: "decode and print CT structures",
				Subcommands: []*cli.Command{
					{
						Name:      "sct",
						Usage:     "prints a serialized SCT",
						Action:    handleInspectSCT,
						ArgsUsage: "<sct-file>",
					},
					{
						Name:      "cert",
						Usage:     "prints the SCTs embedded in a certificate",
						Action:    handleInspectCert,
						ArgsUsage: "<cert-file>",
					},
				},
			},
			{
				Name:      "verify",
				Usage:     "verify the SCTs of one or more certificates",
				Action:    handleVerify,
				ArgsUsage: "<cert-file>...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "log-list",
						Usage: "path to a JSON log list",
					},
					&cli.StringFlag{
						Name:  "log-list-url",
						Usage: "URL of a JSON log list",
					},
					&cli.StringFlag{
						Name:  "ocsp",
						Usage: "path to a DER OCSP response to use as stapled evidence",
					},
					&cli.StringFlag{
						Name:  "tls-scts",
						Usage: "path to a raw SCT list received via TLS extension",
					},
					&cli.BoolFlag{
						Name:  "fetch-ocsp",
						Usage: "fetch an OCSP response from the certificate's responder",
					},
					&cli.StringFlag{
						Name:  "audit-db",
						Usage: "record verdicts in this database",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "serve prometheus metrics on this address",
					},
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		if err != errArgs {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
