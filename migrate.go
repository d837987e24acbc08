package assetcache

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// S3 standard storage pricing used for estimates, USD per GB-month.
const storagePricePerGBMonth = 0.023

// PlanItem is one asset scheduled for migration.
type PlanItem struct {
	Key       string `json:"cache_key"`
	LocalPath string `json:"local_path"`
	RemoteKey string `json:"remote_key"`
	SizeBytes int64  `json:"size_bytes"`
}

// Plan describes a migration of local assets to the remote store,
// grouped the way the remote layout will organize them.
//
// UnindexedFiles is informational only: files found on disk without an index
// entry are listed for the operator but excluded from TotalAssets,
// TotalSizeBytes, cost estimates, Execute and Validate. Register them first
// if they should move.
type Plan struct {
	CreatedAt       time.Time  `json:"created_at"`
	TotalAssets     int        `json:"total_assets"`
	TotalSizeBytes  int64      `json:"total_size_bytes"`
	Products        []PlanItem `json:"products"`
	SceneAssets     []PlanItem `json:"scene_assets"`
	CampaignAssets  []PlanItem `json:"campaign_assets"`
	UnindexedFiles  []PlanItem `json:"unindexed_files"`
	AlreadyMigrated int        `json:"already_migrated"`
}

// CostEstimate projects remote storage cost for a plan.
type CostEstimate struct {
	SizeGB     float64 `json:"size_gb"`
	PerGB      float64 `json:"per_gb_month_usd"`
	MonthlyUSD float64 `json:"monthly_usd"`
	YearlyUSD  float64 `json:"yearly_usd"`
}

// EstimateCost projects monthly and yearly storage cost for totalBytes.
// perGBMonth overrides the standard rate when positive. Transfer and request
// fees are not modeled.
func EstimateCost(totalBytes int64, perGBMonth float64) CostEstimate {
	if perGBMonth <= 0 {
		perGBMonth = storagePricePerGBMonth
	}
	gb := float64(totalBytes) / (1024 * 1024 * 1024)
	monthly := gb * perGBMonth
	return CostEstimate{
		SizeGB:     gb,
		PerGB:      perGBMonth,
		MonthlyUSD: monthly,
		YearlyUSD:  monthly * 12,
	}
}

// MigrationResult summarizes an executed plan.
type MigrationResult struct {
	DryRun   bool     `json:"dry_run"`
	Total    int      `json:"total"`
	Migrated int      `json:"migrated"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// SuccessRate is the fraction of planned items migrated, 0..1.
func (r MigrationResult) SuccessRate() float64 {
	if r.Total == 0 {
		return 1
	}
	return float64(r.Migrated) / float64(r.Total)
}

// ValidationReport summarizes a post-migration check of a plan.
type ValidationReport struct {
	Validated       int      `json:"validated"`
	Missing         int      `json:"missing"`
	Mismatched      int      `json:"mismatched"`
	MissingDetails  []string `json:"missing_details,omitempty"`
	MismatchDetails []string `json:"mismatch_details,omitempty"`

	detailCap int
}

// SuccessRate is the fraction of checked objects found intact, 0..1.
func (v ValidationReport) SuccessRate() float64 {
	total := v.Validated + v.Missing + v.Mismatched
	if total == 0 {
		return 1
	}
	return float64(v.Validated) / float64(total)
}

// Migrator plans and runs bulk moves of the local cache into the
// remote store. Migration is additive: local files stay in place and
// gain remote backing.
type Migrator struct {
	idx  *Index
	tier *Tier
	log  Logger
	now  func() time.Time
}

func newMigrator(idx *Index, tier *Tier, log Logger, now func() time.Time) *Migrator {
	return &Migrator{idx: idx, tier: tier, log: log, now: now}
}

// CreatePlan inventories local assets that are not yet remote-backed,
// including files under the cache directory that were never indexed.
func (m *Migrator) CreatePlan() (*Plan, error) {
	plan := &Plan{CreatedAt: m.now()}
	indexed := make(map[string]bool)
	for _, e := range m.idx.snapshot() {
		indexed[filepath.Clean(e.FilePath)] = true
		if e.RemoteKey != "" {
			plan.AlreadyMigrated++
			continue
		}
		fi, err := os.Stat(e.FilePath)
		if err != nil {
			continue
		}
		item := PlanItem{
			Key:       e.Key,
			LocalPath: e.FilePath,
			RemoteKey: m.tier.remoteKeyFor(e),
			SizeBytes: fi.Size(),
		}
		switch e.Metadata.AssetType {
		case AssetProductTransparent:
			plan.Products = append(plan.Products, item)
		case AssetSceneBackground:
			plan.SceneAssets = append(plan.SceneAssets, item)
		default:
			plan.CampaignAssets = append(plan.CampaignAssets, item)
		}
		plan.TotalAssets++
		plan.TotalSizeBytes += item.SizeBytes
	}

	err := filepath.WalkDir(m.idx.Dir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := d.Name()
		if name == indexFilename || name == versionsFilename || name == journalFilename {
			return nil
		}
		if strings.HasSuffix(name, ".tmp") || indexed[filepath.Clean(path)] {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		plan.UnindexedFiles = append(plan.UnindexedFiles, PlanItem{
			LocalPath: path,
			SizeBytes: fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("plan: scan cache dir: %w", err)
	}

	m.log.Info("migration plan created", Fields{
		"assets":     plan.TotalAssets,
		"size_bytes": plan.TotalSizeBytes,
		"unindexed":  len(plan.UnindexedFiles),
	})
	return plan, nil
}

func (p *Plan) items() []PlanItem {
	out := make([]PlanItem, 0, p.TotalAssets)
	out = append(out, p.Products...)
	out = append(out, p.SceneAssets...)
	out = append(out, p.CampaignAssets...)
	return out
}

// Execute uploads every planned asset. With dryRun the plan is walked
// and counted but nothing is transferred. cb, when non-nil, receives
// progress after each item. Per-item failures are recorded and the
// migration continues.
func (m *Migrator) Execute(ctx context.Context, plan *Plan, dryRun bool, cb func(Progress)) (MigrationResult, error) {
	items := plan.items()
	res := MigrationResult{DryRun: dryRun, Total: len(items)}
	if !m.tier.Enabled() && !dryRun {
		return res, ErrRemoteDisabled
	}
	p := Progress{Total: len(items), Started: m.now(), nowFn: m.now}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if dryRun {
			res.Migrated++
			p.Uploaded++
			p.Bytes += item.SizeBytes
		} else if _, err := m.tier.Upload(ctx, item.Key); err != nil {
			res.Failed++
			p.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", item.Key, err))
		} else {
			res.Migrated++
			p.Uploaded++
			p.Bytes += item.SizeBytes
		}
		if cb != nil {
			cb(p)
		}
	}
	m.log.Info("migration executed", Fields{
		"dry_run": dryRun, "migrated": res.Migrated, "failed": res.Failed,
	})
	return res, nil
}

// Validate checks that every planned object exists remotely with the
// expected size. The first ten discrepancies of each kind are detailed.
func (m *Migrator) Validate(ctx context.Context, plan *Plan) (ValidationReport, error) {
	if !m.tier.Enabled() {
		return ValidationReport{}, ErrRemoteDisabled
	}
	rep := ValidationReport{detailCap: 10}
	for _, item := range plan.items() {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		info, found, err := m.tier.store.Head(ctx, item.RemoteKey)
		if err != nil {
			return rep, err
		}
		switch {
		case !found:
			rep.Missing++
			if len(rep.MissingDetails) < rep.detailCap {
				rep.MissingDetails = append(rep.MissingDetails,
					fmt.Sprintf("%s (local %s)", item.RemoteKey, item.LocalPath))
			}
		case info.SizeBytes != item.SizeBytes:
			rep.Mismatched++
			if len(rep.MismatchDetails) < rep.detailCap {
				rep.MismatchDetails = append(rep.MismatchDetails,
					fmt.Sprintf("%s: local %d remote %d bytes", item.RemoteKey, item.SizeBytes, info.SizeBytes))
			}
		default:
			rep.Validated++
		}
	}
	m.log.Info("migration validated", Fields{
		"validated": rep.Validated, "missing": rep.Missing, "mismatched": rep.Mismatched,
	})
	return rep, nil
}
