package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/groblegark/tempo/internal/capture"
	"github.com/groblegark/tempo/internal/classify"
	"github.com/groblegark/tempo/internal/config"
	"github.com/groblegark/tempo/internal/crm"
	"github.com/groblegark/tempo/internal/jira"
)

var checkCmd = &cobra.Command{
	Use:     "check",
	Short:   "Health-check every configured collaborator",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		failed := 0

		report := func(name string, err error) {
			if err != nil {
				failed++
				fmt.Printf("  %-10s FAIL  %v\n", name, err)
				return
			}
			fmt.Printf("  %-10s ok\n", name)
		}

		fmt.Println("Checking collaborators:")
		report("capture", capture.NewClient(cfg.Capture.URL, cfg.Capture.Timeout.Duration).HealthCheck(ctx))

		if cfg.Jira.Enabled {
			jc := jira.NewClient(cfg.Jira.URL, cfg.Jira.Email, cfg.Jira.APIToken, cfg.Jira.Timeout.Duration)
			report("jira", jc.HealthCheck(ctx))
		} else {
			fmt.Println("  jira       skipped (disabled)")
		}

		if cfg.CRM.Enabled {
			cc := crm.NewClient(cfg.CRM.URL, crm.Credentials{
				Username:     cfg.CRM.Username,
				Password:     cfg.CRM.Password,
				ClientID:     cfg.CRM.ClientID,
				ClientSecret: cfg.CRM.ClientSecret,
			}, cfg.CRM.Timeout.Duration)
			report("crm", cc.HealthCheck(ctx))
		} else {
			fmt.Println("  crm        skipped (disabled)")
		}

		if cfg.Classifier.Enabled {
			report("classifier", checkClassifier(ctx, cfg))
		} else {
			fmt.Println("  classifier skipped (disabled)")
		}

		if failed > 0 {
			return fmt.Errorf("%d collaborator(s) unreachable", failed)
		}
		return nil
	},
}

// checkClassifier sends an empty batch; any HTTP response (even a 4xx on the
// empty payload) proves the endpoint is reachable.
func checkClassifier(ctx context.Context, cfg *config.Config) error {
	c := classify.NewClient(cfg.Classifier.Endpoint, cfg.Classifier.APIKey, cfg.Classifier.Timeout.Duration)
	_, err := c.AnalyzeBatch(ctx, classify.BatchInput{})
	if err != nil && isTransportError(err) {
		return err
	}
	return nil
}

func isTransportError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
