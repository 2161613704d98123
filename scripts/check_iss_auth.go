package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	appconfig "algopack-api/internal/config"
	"algopack-api/pkg/iss"
)

// Verifies ISS credentials before the daemon is pointed at them: reports
// the auth mode, performs passport authentication when configured and
// probes one public and one entitled endpoint.
//
// Run with: go run scripts/check_iss_auth.go
func main() {
	// MustLoadISS reads etc/iss.yaml when present and loads .env first.
	cfg := appconfig.MustLoadISS()

	fmt.Println("═══════════════════════════════════════════════════════════════")
	switch {
	case cfg.Token != "":
		fmt.Println("Credential: API token (APIKEY), AlgoPack endpoint")
	case cfg.Username != "":
		fmt.Printf("Credential: passport account %s\n", cfg.Username)
	default:
		fmt.Println("Credential: none, anonymous access with request pacing")
	}
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()

	client := iss.NewClientFromConfig(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Username != "" {
		if err := client.Authenticate(ctx, cfg.Username, cfg.Password); err != nil {
			fmt.Printf("passport authentication failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("passport authentication OK (MicexPassportCert issued)")
	}

	// Global dictionaries are served at every credential level, so this
	// probes connectivity without touching entitlements.
	engines, err := client.Table(ctx, "index", "engines", nil)
	if err != nil {
		fmt.Printf("ISS probe failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ISS reachable: %d trading engines listed\n", engines.Len())

	// One AlgoPack request tells token holders whether the entitlement
	// works end to end.
	if cfg.Token != "" {
		stats, err := client.Table(ctx, "datashop/algopack/eq/tradestats", "data", url.Values{"latest": {"1"}})
		if err != nil {
			fmt.Printf("AlgoPack probe failed: %v\n", err)
			fmt.Println("The token reached ISS but the AlgoPack entitlement did not answer.")
			os.Exit(1)
		}
		fmt.Printf("AlgoPack reachable: latest tradestats page has %d rows\n", stats.Len())
	}
}
