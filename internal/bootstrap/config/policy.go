package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"licenselink/internal/bootstrap/logging"
	"licenselink/internal/domain/linking"
	"licenselink/internal/errs"
)

// policyFile mirrors the TOML layout:
//
//	[[passes]]
//	name = "approval"
//	outcome_kind = "outcome_approved"
//	categories = ["RENEWAL", "NEW APPLICATION"]
//
//	[[data_gaps]]
//	category = "NEW APPLICATION"
//	cutoff = 2025-05-12
type policyFile struct {
	ToleranceDays     *int           `toml:"tolerance_days"`
	PendingCutoffDays *int           `toml:"pending_cutoff_days"`
	Passes            []passEntry    `toml:"passes"`
	DataGaps          []dataGapEntry `toml:"data_gaps"`
}

type passEntry struct {
	Name            string   `toml:"name"`
	OutcomeKind     string   `toml:"outcome_kind"`
	Categories      []string `toml:"categories"`
	OutcomeCategory string   `toml:"outcome_category"`
	ToleranceDays   *int     `toml:"tolerance_days"`
}

type dataGapEntry struct {
	Category string         `toml:"category"`
	Cutoff   toml.LocalDate `toml:"cutoff"`
	Detail   string         `toml:"detail"`
}

// LoadPolicy builds the linking policy: the built-in passes and data gaps,
// tuned by the linking config, and replaced section by section by the policy
// file when one is set.
func LoadPolicy(ctx context.Context, cfg LinkingConfig) (linking.Policy, error) {
	if ctx == nil {
		return linking.Policy{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return linking.Policy{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.policy"))

	policy := linking.DefaultPolicy()
	policy.ToleranceDays = cfg.ToleranceDays
	policy.PendingCutoffDays = cfg.PendingCutoffDays

	path := strings.TrimSpace(cfg.PolicyFile)
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return linking.Policy{}, errs.Wrapf(err, "open policy file %q", path)
		}
		defer f.Close()

		if err := applyPolicyFile(&policy, f); err != nil {
			return linking.Policy{}, errs.Wrapf(err, "load policy file %q", path)
		}
		logging.Info(logCtx, "using policy file", slog.String("path", path))
	}

	if err := policy.Validate(); err != nil {
		return linking.Policy{}, err
	}

	logging.Info(logCtx, "linking policy ready",
		slog.Int("passes", len(policy.Passes)),
		slog.Int("data_gaps", len(policy.DataGaps)),
		slog.Int("tolerance_days", policy.ToleranceDays),
		slog.Int("pending_cutoff_days", policy.PendingCutoffDays),
	)
	return policy, nil
}

func applyPolicyFile(policy *linking.Policy, r io.Reader) error {
	var file policyFile
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&file); err != nil {
		return errs.Wrap(err, "decode toml")
	}

	if file.ToleranceDays != nil {
		policy.ToleranceDays = *file.ToleranceDays
	}
	if file.PendingCutoffDays != nil {
		policy.PendingCutoffDays = *file.PendingCutoffDays
	}

	if file.Passes != nil {
		passes := make([]linking.Pass, 0, len(file.Passes))
		for i, entry := range file.Passes {
			kind, err := linking.ParseKind(entry.OutcomeKind)
			if err != nil {
				return fmt.Errorf("%w: passes[%d]: %v", linking.ErrInvalidPolicy, i, err)
			}
			passes = append(passes, linking.Pass{
				Name:            strings.TrimSpace(entry.Name),
				OutcomeKind:     kind,
				Categories:      entry.Categories,
				OutcomeCategory: strings.TrimSpace(entry.OutcomeCategory),
				ToleranceDays:   entry.ToleranceDays,
			})
		}
		policy.Passes = passes
	}

	if file.DataGaps != nil {
		gaps := make([]linking.DataGap, 0, len(file.DataGaps))
		for _, entry := range file.DataGaps {
			var cutoff time.Time
			if entry.Cutoff != (toml.LocalDate{}) {
				cutoff = entry.Cutoff.AsTime(time.UTC)
			}
			gaps = append(gaps, linking.DataGap{
				Category: strings.TrimSpace(entry.Category),
				Cutoff:   cutoff,
				Detail:   entry.Detail,
			})
		}
		policy.DataGaps = gaps
	}
	return nil
}
