package insights

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"talentforge/internal/copc"
	"talentforge/internal/nr1"
)

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

const (
	TypeAlert          = "alert"
	TypeRecommendation = "recommendation"
	TypeOpportunity    = "opportunity"
)

type Insight struct {
	Type            string   `json:"type"`
	Severity        string   `json:"severity"`
	Module          string   `json:"module"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	ActionableItems []string `json:"actionableItems"`
	ImpactScore     int      `json:"impactScore"`
}

var severityRank = map[string]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
}

type Service struct {
	DB      *pgxpool.Pool
	Log     *zap.Logger
	Narrate Narrator
}

func NewService(db *pgxpool.Pool, log *zap.Logger, narrate Narrator) *Service {
	return &Service{DB: db, Log: log, Narrate: narrate}
}

// Generate runs the rule-based analyzers across modules and returns
// insights sorted by severity, most severe first.
func (s *Service) Generate(ctx context.Context, orgID string) ([]Insight, error) {
	var insights []Insight

	tfci, err := s.analyzeTFCI(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("tfci analysis: %w", err)
	}
	insights = append(insights, tfci...)

	riskInsights, err := s.analyzeNR1(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("nr1 analysis: %w", err)
	}
	insights = append(insights, riskInsights...)

	copcInsights, err := s.analyzeCOPC(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("copc analysis: %w", err)
	}
	insights = append(insights, copcInsights...)

	sort.SliceStable(insights, func(i, j int) bool {
		return severityRank[insights[i].Severity] > severityRank[insights[j].Severity]
	})
	return insights, nil
}

// analyzeTFCI flags targets whose submitted peer reviews average below 3.
func (s *Service) analyzeTFCI(ctx context.Context, orgID string) ([]Insight, error) {
	var weakTargets int
	var avgOverall *float64
	err := s.DB.QueryRow(ctx, `
    SELECT count(*) FILTER (WHERE avg_score < 3), avg(avg_score)
    FROM (
      SELECT target_user_id, avg(overall_score) AS avg_score
      FROM tfci_assessments
      WHERE org_id = $1 AND submitted_at IS NOT NULL
      GROUP BY target_user_id
    ) t
  `, orgID).Scan(&weakTargets, &avgOverall)
	if err != nil {
		return nil, err
	}

	var insights []Insight
	if weakTargets > 0 {
		insights = append(insights, Insight{
			Type:        TypeRecommendation,
			Severity:    SeverityMedium,
			Module:      "tfci",
			Title:       "Low behavioral performance pattern",
			Description: fmt.Sprintf("%d employees average below 3.0 across submitted 360 reviews", weakTargets),
			ActionableItems: []string{
				"Start individual coaching programs",
				"Review the onboarding process",
				"Increase 1:1 feedback frequency",
			},
			ImpactScore: 75,
		})
	}
	if avgOverall != nil && *avgOverall >= 4 {
		insights = append(insights, Insight{
			Type:        TypeOpportunity,
			Severity:    SeverityLow,
			Module:      "tfci",
			Title:       "Strong peer review climate",
			Description: fmt.Sprintf("Organization-wide 360 average is %.1f out of 5", *avgOverall),
			ActionableItems: []string{
				"Document and share current team practices",
				"Identify internal mentors among top scorers",
			},
			ImpactScore: 40,
		})
	}
	return insights, nil
}

// analyzeNR1 raises alerts for high and critical psychosocial assessments
// in the rolling 90-day window.
func (s *Service) analyzeNR1(ctx context.Context, orgID string) ([]Insight, error) {
	var highCount, criticalCount int
	err := s.DB.QueryRow(ctx, `
    SELECT count(*) FILTER (WHERE overall_risk_level = $2),
           count(*) FILTER (WHERE overall_risk_level = $3)
    FROM nr1_assessments
    WHERE org_id = $1 AND created_at >= now() - interval '90 days'
  `, orgID, nr1.RiskHigh, nr1.RiskCritical).Scan(&highCount, &criticalCount)
	if err != nil {
		return nil, err
	}

	var insights []Insight
	if criticalCount > 0 {
		insights = append(insights, Insight{
			Type:        TypeAlert,
			Severity:    SeverityCritical,
			Module:      "nr1",
			Title:       "Critical psychosocial risk identified",
			Description: fmt.Sprintf("%d assessments at critical risk in the last 90 days", criticalCount),
			ActionableItems: []string{
				"Redistribute workload immediately",
				"Review targets and deadlines with leadership",
				"Consider temporary headcount increase",
			},
			ImpactScore: 95,
		})
	}
	if highCount > 0 {
		insights = append(insights, Insight{
			Type:        TypeAlert,
			Severity:    SeverityHigh,
			Module:      "nr1",
			Title:       "Elevated psychosocial risk",
			Description: fmt.Sprintf("%d assessments at high risk in the last 90 days", highCount),
			ActionableItems: []string{
				"Open action plans for affected teams",
				"Schedule leadership check-ins",
			},
			ImpactScore: 85,
		})
	}
	return insights, nil
}

// analyzeCOPC compares the 30-day composite against status thresholds.
func (s *Service) analyzeCOPC(ctx context.Context, orgID string) ([]Insight, error) {
	var avgOverall *float64
	var avgQuality *float64
	err := s.DB.QueryRow(ctx, `
    SELECT avg(overall_score), avg(quality_score)
    FROM copc_metrics
    WHERE org_id = $1 AND metric_date >= CURRENT_DATE - 30
  `, orgID).Scan(&avgOverall, &avgQuality)
	if err != nil {
		return nil, err
	}
	if avgOverall == nil {
		return nil, nil
	}

	var insights []Insight
	switch status := copc.StatusFor(*avgOverall); status {
	case copc.StatusCritical:
		insights = append(insights, Insight{
			Type:        TypeAlert,
			Severity:    SeverityHigh,
			Module:      "copc",
			Title:       "Operational score in critical band",
			Description: fmt.Sprintf("30-day composite is %.1f, below the warning threshold", *avgOverall),
			ActionableItems: []string{
				"Run a root-cause review with team leads",
				"Freeze non-essential process changes",
			},
			ImpactScore: 90,
		})
	case copc.StatusWarning:
		insights = append(insights, Insight{
			Type:        TypeRecommendation,
			Severity:    SeverityMedium,
			Module:      "copc",
			Title:       "Operational score needs attention",
			Description: fmt.Sprintf("30-day composite is %.1f", *avgOverall),
			ActionableItems: []string{
				"Introduce a QA checklist",
				"Increase calibration frequency",
			},
			ImpactScore: 65,
		})
	}
	if avgQuality != nil && *avgQuality < 70 && copc.StatusFor(*avgOverall) == copc.StatusGood {
		insights = append(insights, Insight{
			Type:        TypeOpportunity,
			Severity:    SeverityLow,
			Module:      "copc",
			Title:       "Quality lags the composite",
			Description: fmt.Sprintf("Quality averages %.1f while the weighted composite holds good", *avgQuality),
			ActionableItems: []string{
				"Train the team on the top rework causes",
				"Review quality scoring criteria",
			},
			ImpactScore: 55,
		})
	}
	return insights, nil
}
