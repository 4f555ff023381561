package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/medspa-pipeline/internal/config"
	"github.com/wolfman30/medspa-pipeline/internal/crmclient"
	httpmiddleware "github.com/wolfman30/medspa-pipeline/internal/http/middleware"
	"github.com/wolfman30/medspa-pipeline/internal/leads"
	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

var demo = []struct {
	name, email, phone, source string
	cents                      int64
	tags                       []string
}{
	{"Avery Quinn", "avery@example.com", "", "web", 45000, []string{"botox"}},
	{"Jordan Park", "", "+15550100101", "instagram", 120000, []string{"filler", "vip"}},
	{"Riley Chen", "riley@example.com", "+15550100102", "referral", 30000, nil},
	{"Morgan Diaz", "morgan@example.com", "", "google", 85000, []string{"laser"}},
	{"Casey Patel", "", "+15550100103", "web", 15000, nil},
	{"Taylor Brooks", "taylor@example.com", "", "instagram", 60000, []string{"facial"}},
}

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/seed <org_id> [count]")
		os.Exit(1)
	}
	orgID := os.Args[1]
	count := len(demo)
	if len(os.Args) >= 3 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil || n <= 0 {
			fmt.Printf("Error: invalid count %q\n", os.Args[2])
			os.Exit(1)
		}
		count = n
	}

	cfg := appconfig.Load()
	if cfg.StaffJWTSecret == "" {
		fmt.Println("Error: STAFF_JWT_SECRET environment variable not set")
		os.Exit(1)
	}
	token, err := httpmiddleware.SignToken(cfg.StaffJWTSecret, orgID, "seed", time.Hour)
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	client := crmclient.New(cfg.APIBaseURL, token, logger)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Printf("Seeding %d leads into org %s at %s...\n", count, orgID, cfg.APIBaseURL)
	for i := 0; i < count; i++ {
		d := demo[i%len(demo)]
		name := d.name
		if i >= len(demo) {
			name = fmt.Sprintf("%s %d", d.name, i/len(demo)+1)
		}
		lead, err := client.CreateLead(ctx, leads.CreateLeadRequest{
			Name:       name,
			Email:      d.email,
			Phone:      d.phone,
			Source:     d.source,
			ValueCents: d.cents,
			Tags:       d.tags,
			CustomFields: pipeline.CustomFields{
				"seeded": pipeline.BoolValue(true),
			},
		})
		if err != nil {
			fmt.Printf("Error creating %s: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("  %s  %s (%s)\n", lead.ID, lead.Name, lead.Channel)
	}

	fmt.Println("Done. Point boardctl at the same org with:")
	fmt.Printf("  export PIPELINE_API_TOKEN=%s\n", token)
}
