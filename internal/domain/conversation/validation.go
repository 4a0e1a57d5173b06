package conversation

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/contextd/contextd/internal/utils/idgen"
)

// ===============================================
// Validation
// ===============================================

// ValidationConfig holds conversation-level validation rules
type ValidationConfig struct {
	MaxMetadataKeys        int
	MaxMetadataKeyLength   int
	MaxMetadataValueLength int
	MaxBranchNameLength    int
	MaxItemsPerAppend      int
	MaxContentBytes        int
}

// DefaultValidationConfig returns the default validation rules
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MaxMetadataKeys:        16,
		MaxMetadataKeyLength:   64,
		MaxMetadataValueLength: 512,
		MaxBranchNameLength:    64,
		MaxItemsPerAppend:      100,
		MaxContentBytes:        1 << 20, // 1 MiB per item payload
	}
}

// Validator handles conversation and item validation
type Validator struct {
	config             *ValidationConfig
	metadataKeyPattern *regexp.Regexp
}

// NewValidator creates a validator; a nil config selects the defaults.
func NewValidator(config *ValidationConfig) *Validator {
	if config == nil {
		config = DefaultValidationConfig()
	}
	return &Validator{
		config:             config,
		metadataKeyPattern: regexp.MustCompile(`^[a-zA-Z0-9_]+$`),
	}
}

// ValidateConversationID checks the public id format.
func (v *Validator) ValidateConversationID(publicID string) error {
	if publicID == "" {
		return fmt.Errorf("conversation ID cannot be empty")
	}
	if !idgen.HasPrefix(publicID, idgen.PrefixConversation) {
		return fmt.Errorf("conversation ID must start with %q: %s", idgen.PrefixConversation+"_", publicID)
	}
	return nil
}

// ValidateMetadata checks metadata bag limits.
func (v *Validator) ValidateMetadata(metadata map[string]string) error {
	if len(metadata) > v.config.MaxMetadataKeys {
		return fmt.Errorf("metadata cannot have more than %d keys", v.config.MaxMetadataKeys)
	}
	for key, value := range metadata {
		if utf8.RuneCountInString(key) > v.config.MaxMetadataKeyLength {
			return fmt.Errorf("metadata key %q exceeds %d characters", key, v.config.MaxMetadataKeyLength)
		}
		if !v.metadataKeyPattern.MatchString(key) {
			return fmt.Errorf("metadata key %q contains invalid characters", key)
		}
		if utf8.RuneCountInString(value) > v.config.MaxMetadataValueLength {
			return fmt.Errorf("metadata value for %q exceeds %d characters", key, v.config.MaxMetadataValueLength)
		}
	}
	return nil
}

// ValidateBranchName checks branch name constraints.
func (v *Validator) ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if utf8.RuneCountInString(name) > v.config.MaxBranchNameLength {
		return fmt.Errorf("branch name exceeds %d characters", v.config.MaxBranchNameLength)
	}
	return nil
}

// ValidateItems checks an append batch.
func (v *Validator) ValidateItems(items []*Item) error {
	if len(items) == 0 {
		return fmt.Errorf("append batch cannot be empty")
	}
	if len(items) > v.config.MaxItemsPerAppend {
		return fmt.Errorf("append batch cannot exceed %d items", v.config.MaxItemsPerAppend)
	}
	for i, item := range items {
		if item == nil {
			return fmt.Errorf("item %d is nil", i)
		}
		if !ValidateItemRole(string(item.Role)) {
			return fmt.Errorf("item %d has invalid role %q", i, item.Role)
		}
		if len(item.Content) > v.config.MaxContentBytes {
			return fmt.Errorf("item %d content exceeds %d bytes", i, v.config.MaxContentBytes)
		}
	}
	return nil
}
