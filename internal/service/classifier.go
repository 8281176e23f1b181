package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/triage-engine/internal/clients"
	"github.com/spec-kit/triage-engine/internal/domain"
)

// Rule-tier confidences.
const (
	ConfidenceSecurity      = 0.92
	ConfidenceBillingStrong = 0.90
	ConfidenceBillingWeak   = 0.75
	ConfidenceAccess        = 0.75
	ConfidenceTechnical     = 0.70
	ConfidenceProduct       = 0.65
	ConfidenceFeedback      = 0.65

	agreementBoost   = 0.10
	agreementCeiling = 0.98
)

type ruleTier struct {
	phrases  []string
	category domain.Category
	priority domain.Priority
	conf     float64
	flag     string
}

// Checked in order; the first tier with a matching phrase wins.
var ruleTiers = []ruleTier{
	{
		phrases:  []string{"security", "breach", "hacked", "unauthorized", "compromise", "phishing", "leak", "ransomware"},
		category: domain.CategorySecurity, priority: domain.PriorityHigh, conf: ConfidenceSecurity, flag: domain.RiskFlagSecurity,
	},
	{
		phrases:  []string{"chargeback"},
		category: domain.CategoryBilling, priority: domain.PriorityHigh, conf: ConfidenceBillingStrong, flag: domain.RiskFlagBilling,
	},
	{
		phrases:  []string{"refund", "billing", "invoice", "payment failed", "duplicate charge", "payment"},
		category: domain.CategoryBilling, priority: domain.PriorityMedium, conf: ConfidenceBillingWeak, flag: domain.RiskFlagBilling,
	},
	{
		phrases:  []string{"login", "password", "reset", "2fa", "mfa", "locked", "access denied"},
		category: domain.CategoryAccountAccess, priority: domain.PriorityMedium, conf: ConfidenceAccess, flag: domain.RiskFlagAccess,
	},
	{
		phrases:  []string{"bug", "error", "crash", "down", "not loading", "performance", "timeout"},
		category: domain.CategoryTechnical, priority: domain.PriorityMedium, conf: ConfidenceTechnical, flag: domain.RiskFlagTechnical,
	},
	{
		phrases:  []string{"feature", "roadmap", "integration", "api", "pricing plan"},
		category: domain.CategoryProduct, priority: domain.PriorityLow, conf: ConfidenceProduct, flag: domain.RiskFlagProduct,
	},
	{
		phrases:  []string{"suggestion", "feedback", "survey", "rating", "review"},
		category: domain.CategoryFeedback, priority: domain.PriorityLow, conf: ConfidenceFeedback, flag: domain.RiskFlagFeedback,
	},
}

// DefaultClassification is used when neither pass has an opinion.
func DefaultClassification() domain.ClassificationResult {
	return domain.ClassificationResult{
		Category:   domain.CategoryGeneral,
		Priority:   domain.PriorityLow,
		Confidence: 0.5,
		RiskFlags:  []string{},
	}
}

// RuleClassify matches the lower-cased subject and body against the rule
// tiers. It returns nil when no phrase matches.
func RuleClassify(subject, body string) *domain.ClassificationResult {
	text := strings.ToLower(subject + " " + body)
	for _, tier := range ruleTiers {
		for _, phrase := range tier.phrases {
			if strings.Contains(text, phrase) {
				return &domain.ClassificationResult{
					Category:   tier.category,
					Priority:   tier.priority,
					Confidence: tier.conf,
					RiskFlags:  []string{tier.flag},
				}
			}
		}
	}
	return nil
}

// Reconcile merges the rule and model opinions. Either may be nil.
func Reconcile(rule, model *domain.ClassificationResult) domain.ClassificationResult {
	switch {
	case rule != nil && model != nil:
		agree := rule.Category == model.Category
		out := domain.ClassificationResult{
			Category:   model.Category,
			Confidence: max(rule.Confidence, model.Confidence),
			RiskFlags:  unionFlags(rule.RiskFlags, model.RiskFlags),
		}
		if agree {
			out.Category = rule.Category
			out.Confidence = min(agreementCeiling, out.Confidence+agreementBoost)
		}
		switch {
		case rule.Priority == domain.PriorityHigh || model.Priority == domain.PriorityHigh:
			out.Priority = domain.PriorityHigh
		case rule.Priority != "":
			out.Priority = rule.Priority
		default:
			out.Priority = model.Priority
		}
		return out
	case rule != nil:
		return cloneClassification(*rule)
	case model != nil:
		return cloneClassification(*model)
	default:
		return DefaultClassification()
	}
}

func unionFlags(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, f := range append(slices.Clone(a), b...) {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func cloneClassification(c domain.ClassificationResult) domain.ClassificationResult {
	c.RiskFlags = slices.Clone(c.RiskFlags)
	if c.RiskFlags == nil {
		c.RiskFlags = []string{}
	}
	return c
}

// ModelOpinion is the best-effort external classification pass.
type ModelOpinion interface {
	Classify(ctx context.Context, subject, body string) (*domain.ClassificationResult, error)
}

// Classifier combines the rule pass with an optional model pass.
type Classifier struct {
	model   ModelOpinion
	timeout time.Duration
	logger  *zap.Logger
}

// NewClassifier builds a classifier. model may be nil.
func NewClassifier(model ModelOpinion, timeout time.Duration, logger *zap.Logger) *Classifier {
	return &Classifier{model: model, timeout: timeout, logger: logger}
}

// Classify never fails: model errors are logged and treated as no opinion.
func (c *Classifier) Classify(ctx context.Context, subject, body string) domain.ClassificationResult {
	var model *domain.ClassificationResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		model = c.modelPass(gctx, subject, body)
		return nil
	})
	rule := RuleClassify(subject, body)
	_ = g.Wait()
	return Reconcile(rule, model)
}

func (c *Classifier) modelPass(ctx context.Context, subject, body string) (result *domain.ClassificationResult) {
	if c.model == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("model classifier panicked", zap.Any("panic", r))
			result = nil
		}
	}()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	opinion, err := c.model.Classify(ctx, subject, body)
	switch {
	case errors.Is(err, clients.ErrNotConfigured):
		c.logger.Debug("model classifier not configured; using rules only")
		return nil
	case err != nil:
		c.logger.Warn("model classifier failed; using rules only", zap.Error(err))
		return nil
	case opinion == nil || !opinion.Category.Valid() || !opinion.Priority.Valid():
		c.logger.Warn("model classifier returned an invalid opinion; ignoring")
		return nil
	}
	opinion.Confidence = min(1, max(0, opinion.Confidence))
	return opinion
}
