package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eleven-am/warden/internal/domain"
)

// Seed is the YAML document accepted by Import.
type Seed struct {
	Objects []domain.FlowObject     `yaml:"objects"`
	Bundles []domain.FlowRuleBundle `yaml:"bundles"`
	Rules   []domain.FlowRule       `yaml:"rules"`
}

type ImportSummary struct {
	Objects int
	Bundles int
	Rules   int
}

func LoadSeed(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	return DecodeSeed(f)
}

func DecodeSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return &seed, nil
}

// Validate checks references inside the seed. Rules may reference objects
// and bundles that already exist in the store, so only shape is checked
// here.
func (s *Seed) Validate() error {
	var errs []error
	for _, obj := range s.Objects {
		errs = append(errs, validateObject(obj))
	}
	for _, bundle := range s.Bundles {
		if bundle.ID == "" || bundle.RuleGroupArn == "" || bundle.AggregatorName == "" {
			errs = append(errs, domain.NewValidationError("bundle %q needs id, ruleGroupArn and aggregatorName", bundle.ID))
		}
	}
	for _, rule := range s.Rules {
		errs = append(errs, validateRule(rule))
	}
	return errors.Join(errs...)
}

// Import writes the seed to s. Rules that already exist get their version
// bumped and go back to PENDING, the same as an operator edit.
func Import(ctx context.Context, s Store, seed *Seed) (ImportSummary, error) {
	var summary ImportSummary
	if err := seed.Validate(); err != nil {
		return summary, err
	}

	stamp := now()
	for _, obj := range seed.Objects {
		obj.LastUpdated = stamp
		if err := s.PutObject(ctx, obj); err != nil {
			return summary, err
		}
		summary.Objects++
	}
	for _, bundle := range seed.Bundles {
		bundle.LastUpdated = stamp
		if err := s.PutBundle(ctx, bundle); err != nil {
			return summary, err
		}
		summary.Bundles++
	}
	for _, rule := range seed.Rules {
		existing, err := s.GetRule(ctx, rule.ID)
		var notFound *domain.NotFoundError
		switch {
		case err == nil:
			rule.Version = existing.Version + 1
		case errors.As(err, &notFound):
			rule.Version = 1
		default:
			return summary, err
		}
		rule.Status = domain.RuleStatusPending
		rule.FailureReasons = nil
		rule.SuricataString = ""
		rule.LastUpdated = stamp
		if err := s.PutRule(ctx, rule); err != nil {
			return summary, err
		}
		summary.Rules++
	}
	return summary, nil
}

func validateObject(obj domain.FlowObject) error {
	if obj.ID == "" {
		return domain.NewValidationError("object without id")
	}
	if !obj.Type.Valid() {
		return domain.NewValidationError("object %s has unknown type %q", obj.ID, obj.Type)
	}
	switch obj.Type {
	case domain.ObjectTypeTagged, domain.ObjectTypeLambda:
		if len(obj.Tags) == 0 {
			return domain.NewValidationError("object %s of type %s needs at least one tag", obj.ID, obj.Type)
		}
	case domain.ObjectTypeAddress, domain.ObjectTypeCidr:
		_, addrErr := netip.ParseAddr(obj.Value)
		_, prefixErr := netip.ParsePrefix(obj.Value)
		if addrErr != nil && prefixErr != nil {
			return domain.NewValidationError("object %s: %q is neither an IP address nor a CIDR block", obj.ID, obj.Value)
		}
	default:
		if obj.Value == "" {
			return domain.NewValidationError("object %s needs a value", obj.ID)
		}
	}
	return nil
}

func validateRule(rule domain.FlowRule) error {
	if rule.ID == "" || rule.RuleBundleID == "" {
		return domain.NewValidationError("rule %q needs id and ruleBundleId", rule.ID)
	}
	if rule.Source == "" || rule.Destination == "" {
		return domain.NewValidationError("rule %s needs source and destination", rule.ID)
	}
	switch rule.Action {
	case domain.ActionPass, domain.ActionDrop, domain.ActionReject, domain.ActionAlert:
	default:
		return domain.NewValidationError("rule %s has unknown action %q", rule.ID, rule.Action)
	}
	if rule.Protocol == "" {
		return domain.NewValidationError("rule %s needs a protocol", rule.ID)
	}
	for _, port := range []domain.Port{rule.SourcePort, rule.DestinationPort} {
		if err := validatePort(rule.ID, port); err != nil {
			return err
		}
	}
	return nil
}

func validatePort(ruleID string, p domain.Port) error {
	switch p.Type {
	case domain.PortTypeAny:
		return nil
	case domain.PortTypeSingle:
		if p.Value < 1 || p.Value > 65535 {
			return domain.NewValidationError("rule %s: port %d out of range", ruleID, p.Value)
		}
		return nil
	case domain.PortTypeRange:
		if p.From < 1 || p.To > 65535 || p.From > p.To {
			return domain.NewValidationError("rule %s: invalid port range %d:%d", ruleID, p.From, p.To)
		}
		return nil
	}
	return domain.NewValidationError("rule %s: unknown port type %q", ruleID, p.Type)
}
