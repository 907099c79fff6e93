package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"smart-mail-router/internal/model"
	"smart-mail-router/internal/pattern"
)

// RuleFilter narrows ListRules
type RuleFilter struct {
	Enabled *bool
}

// EnabledRules returns every enabled routing rule, default rule included
func (r *Repository) EnabledRules(ctx context.Context) ([]model.RoutingRule, error) {
	var rules []model.RoutingRule
	result := r.db.WithContext(ctx).Where("enabled = ?", true).Order("priority DESC, id ASC").Find(&rules)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get enabled rules: %w", result.Error)
	}
	return rules, nil
}

// ListRules returns rules ordered by priority, highest first
func (r *Repository) ListRules(ctx context.Context, filter RuleFilter) ([]model.RoutingRule, error) {
	query := r.db.WithContext(ctx).Order("priority DESC, id ASC")
	if filter.Enabled != nil {
		query = query.Where("enabled = ?", *filter.Enabled)
	}

	var rules []model.RoutingRule
	if err := query.Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to get rules: %w", err)
	}
	return rules, nil
}

// GetRule returns a rule by ID
func (r *Repository) GetRule(ctx context.Context, id uint) (*model.RoutingRule, error) {
	var rule model.RoutingRule
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		return nil, notFound("rule", err)
	}
	return &rule, nil
}

// CreateRule validates and stores a new rule. Only the seeded default rule
// may carry the default priority.
func (r *Repository) CreateRule(ctx context.Context, rule *model.RoutingRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.IsDefault() {
		return invalid("priority %d is reserved for the default rule", model.DefaultRulePriority)
	}

	// enabled carries a column default, so gorm skips a false value on insert
	enabled := rule.Enabled
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	if !enabled {
		if err := r.db.WithContext(ctx).Model(rule).Update("enabled", false).Error; err != nil {
			return fmt.Errorf("failed to create rule: %w", err)
		}
		rule.Enabled = false
	}
	r.refreshRuleGauges(ctx)
	return nil
}

// UpdateRule replaces the editable fields of a rule. The default rule keeps
// its priority and patterns.
func (r *Repository) UpdateRule(ctx context.Context, id uint, update *model.RoutingRule) (*model.RoutingRule, error) {
	existing, err := r.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing.IsDefault() {
		if update.Priority != existing.Priority ||
			update.SubjectPatterns != existing.SubjectPatterns ||
			update.PatternType != existing.PatternType {
			return nil, fmt.Errorf("%w: the default rule's priority and patterns cannot change", ErrProtected)
		}
	} else if update.IsDefault() {
		return nil, invalid("priority %d is reserved for the default rule", model.DefaultRulePriority)
	}
	if err := validateRule(update); err != nil {
		return nil, err
	}

	existing.Name = update.Name
	existing.SubjectPatterns = update.SubjectPatterns
	existing.PatternType = update.PatternType
	existing.DefaultProviderName = update.DefaultProviderName
	existing.Recipients = update.Recipients
	existing.AntiSpamEnabled = update.AntiSpamEnabled
	existing.Enabled = update.Enabled
	existing.Priority = update.Priority

	if err := r.db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	r.refreshRuleGauges(ctx)
	return existing, nil
}

// SetRuleEnabled enables or disables a rule
func (r *Repository) SetRuleEnabled(ctx context.Context, id uint, enabled bool) (*model.RoutingRule, error) {
	rule, err := r.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(rule).Update("enabled", enabled).Error; err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	rule.Enabled = enabled
	r.refreshRuleGauges(ctx)
	return rule, nil
}

// DeleteRule removes a rule. The default rule cannot be deleted.
func (r *Repository) DeleteRule(ctx context.Context, id uint) error {
	rule, err := r.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if rule.IsDefault() {
		return fmt.Errorf("%w: the default rule cannot be deleted", ErrProtected)
	}

	if err := r.db.WithContext(ctx).Delete(rule).Error; err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	r.refreshRuleGauges(ctx)
	return nil
}

// RefreshRuleGauges updates the rule count metrics
func (r *Repository) RefreshRuleGauges(ctx context.Context) {
	r.refreshRuleGauges(ctx)
}

func (r *Repository) refreshRuleGauges(ctx context.Context) {
	if r.metrics == nil {
		return
	}

	var total, active int64
	if err := r.db.WithContext(ctx).Model(&model.RoutingRule{}).Count(&total).Error; err != nil {
		logrus.Warnf("Failed to count rules: %v", err)
		return
	}
	if err := r.db.WithContext(ctx).Model(&model.RoutingRule{}).Where("enabled = ?", true).Count(&active).Error; err != nil {
		logrus.Warnf("Failed to count enabled rules: %v", err)
		return
	}
	r.metrics.TotalRules.Set(float64(total))
	r.metrics.ActiveRules.Set(float64(active))
}

func validateRule(rule *model.RoutingRule) error {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.Name == "" {
		return invalid("rule name is required")
	}

	if rule.PatternType == "" {
		rule.PatternType = pattern.Wildcard
	}
	if len(rule.Patterns()) == 0 {
		return invalid("rule %q needs at least one subject pattern", rule.Name)
	}
	if err := pattern.Validate(rule.PatternType, rule.Patterns()); err != nil {
		return invalid("%v", err)
	}
	if rule.Priority < model.DefaultRulePriority {
		return invalid("priority must be %d or greater", model.DefaultRulePriority)
	}
	return nil
}
