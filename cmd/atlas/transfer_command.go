package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gravitational/kingpin"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"

	"github.com/atlas-broker/atlas/lib/archive"
	"github.com/atlas-broker/atlas/lib/bipro/auth"
	"github.com/atlas-broker/atlas/lib/bipro/carrier"
	"github.com/atlas-broker/atlas/lib/bipro/orchestrator"
	"github.com/atlas-broker/atlas/lib/bipro/ratelimit"
	"github.com/atlas-broker/atlas/lib/bipro/tokencache"
	"github.com/atlas-broker/atlas/lib/bipro/transfer"
	"github.com/atlas-broker/atlas/lib/config"
)

// TransferCommand implements `atlas transfer run`, driving the bounded
// per-carrier shipment loop of spec §4.6 against every configured
// carrier (or a chosen subset), archiving retrieved documents and
// acknowledging them once durably stored.
type TransferCommand struct {
	globals *GlobalFlags

	run *kingpin.CmdClause

	carriers      []string
	variant       string
	username      string
	password      string
	otp           string
	ticket        string
	since         string
	confirmedOnly bool
	archiveDir    string
}

func (c *TransferCommand) Initialize(app *kingpin.Application, globals *GlobalFlags) {
	c.globals = globals

	transferCmd := app.Command("transfer", "Drive carrier shipment transfers.")
	c.run = transferCmd.Command("run", "List, fetch, archive, and acknowledge pending shipments for one or more carriers.")
	c.run.Flag("carrier", "Carrier name to run (repeatable). Defaults to every carrier in the config.").StringsVar(&c.carriers)
	c.run.Flag("variant", "Auth variant to use, overriding the carrier's first declared variant.").StringVar(&c.variant)
	c.run.Flag("username", "Username for weak/strong auth variants.").StringVar(&c.username)
	c.run.Flag("password", "Password for weak/strong auth variants.").StringVar(&c.password)
	c.run.Flag("otp", "One-time password for the strong auth variant.").StringVar(&c.otp)
	c.run.Flag("ticket", "Broker-portal session ticket for the ticket auth variants.").StringVar(&c.ticket)
	c.run.Flag("since", "Only list shipments created at or after this RFC3339 timestamp.").StringVar(&c.since)
	c.run.Flag("confirmed-only", "Only list already-confirmed shipments.").BoolVar(&c.confirmedOnly)
	c.run.Flag("archive-dir", "Reserved for a future durable archive adapter; omit to archive in-memory for this run only.").StringVar(&c.archiveDir)
}

func (c *TransferCommand) TryRun(ctx context.Context, selectedCommand string) (bool, error) {
	switch selectedCommand {
	case c.run.FullCommand():
		return true, c.runTransfer(ctx)
	default:
		return false, nil
	}
}

func (c *TransferCommand) runTransfer(ctx context.Context) error {
	cfg, err := loadConfig(c.globals.ConfigPath)
	if err != nil {
		return trace.Wrap(err)
	}

	selected := cfg.Carriers
	if len(c.carriers) > 0 {
		selected = nil
		for _, name := range c.carriers {
			cc, ok := cfg.CarrierByName(name)
			if !ok {
				return trace.NotFound("carrier %q is not in %s", name, c.globals.ConfigPath)
			}
			selected = append(selected, cc)
		}
	}
	if len(selected) == 0 {
		return trace.BadParameter("no carriers configured")
	}

	var filter transfer.ListFilter
	filter.Confirmed = c.confirmedOnly
	if c.since != "" {
		since, err := time.Parse(time.RFC3339, c.since)
		if err != nil {
			return trace.Wrap(err, "parsing --since")
		}
		filter.From = since
	}

	// archive-dir is reserved for a future durable Store; every run today
	// archives into a fresh in-memory Store scoped to this process (spec
	// §6.3 describes the port, not a specific backend, and no object-
	// store/SQL driver exists anywhere in the example corpus to back one).
	store := archive.NewMemStore()

	var runs []orchestrator.CarrierRun
	for _, cc := range selected {
		run, err := c.buildCarrierRun(cc)
		if err != nil {
			return trace.Wrap(err, "configuring carrier %q", cc.Name)
		}
		run.Filter = filter
		runs = append(runs, run)
	}

	orch := orchestrator.New(store, func(p orchestrator.Progress) {
		log.WithFields(log.Fields{
			"carrier": p.Carrier,
			"done":    p.Done,
			"total":   p.Total,
		}).Info(p.CurrentName)
	})

	results, err := orch.Run(ctx, runs)
	if err != nil {
		return trace.Wrap(err)
	}

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			log.WithError(r.Err).WithFields(log.Fields{
				"carrier":  r.Carrier,
				"shipment": r.ShipmentID,
			}).Warn("shipment failed")
		}
	}
	fmt.Printf("transfer run complete: %d shipments, %d failed\n", len(results), failed)

	stats, err := store.Stats(ctx)
	if err != nil {
		return trace.Wrap(err)
	}
	for _, s := range stats {
		fmt.Printf("  %-18s %6d documents  %10d bytes\n", s.BoxType, s.Count, s.Bytes)
	}
	return nil
}

func (c *TransferCommand) buildCarrierRun(cc config.CarrierConfig) (orchestrator.CarrierRun, error) {
	ident := cc.ToCarrier()

	variant := carrier.AuthVariant(c.variant)
	if variant == "" {
		if len(ident.Variants) == 0 {
			return orchestrator.CarrierRun{}, trace.BadParameter("carrier %q declares no auth variants", ident.Name)
		}
		variant = ident.Variants[0]
	}
	ident.RequireVariant(variant)

	creds := carrier.Credentials{
		Variant:  variant,
		Username: c.username,
		Password: c.password,
		OTP:      c.otp,
		Ticket:   c.ticket,
	}

	httpClient := &http.Client{Timeout: cc.Timeouts.Read}
	var tokenSource transfer.TokenSource

	if variant.RequiresSTS() {
		adapter := auth.NewAdapter(ident, variant)
		cache := tokencache.New(systemClock)
		tokenSource = cacheTokenSource{cache: cache, carrier: ident, variant: variant, creds: creds, adapter: adapter}
	} else {
		adapter := auth.NewAdapter(ident, variant)
		binding, err := adapter.BuildTransport(context.Background(), ident, creds)
		if err != nil {
			return orchestrator.CarrierRun{}, trace.Wrap(err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{binding.ClientCert}},
		}
		tokenSource = emptyTokenSource{}
	}

	client := transfer.NewClient(ident.TransferEndpoint, httpClient, tokenSource)
	limiter := ratelimit.New(cc.RateLimiterOptions()...)

	return orchestrator.CarrierRun{
		Carrier: ident.Name,
		Client:  client,
		Limiter: limiter,
	}, nil
}

// cacheTokenSource adapts a tokencache.Cache + fixed (carrier, variant,
// credentials, issuer) tuple into transfer.TokenSource.
type cacheTokenSource struct {
	cache   *tokencache.Cache
	carrier carrier.Carrier
	variant carrier.AuthVariant
	creds   carrier.Credentials
	adapter auth.Adapter
}

func (s cacheTokenSource) BearerToken(ctx context.Context) ([]byte, error) {
	tok, err := s.cache.Get(ctx, s.carrier, s.variant, s.creds, s.adapter)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return tok.Bytes, nil
}

// emptyTokenSource is used for the certificate variant, which authenticates
// on the transport rather than with a wsse bearer token.
type emptyTokenSource struct{}

func (emptyTokenSource) BearerToken(ctx context.Context) ([]byte, error) { return nil, nil }
