package pricing

import "fmt"

// =============================================================================
// MESSAGES - Non-fatal calculation problems
// =============================================================================

type MessageKey string

const (
	MsgMissingBaseDate    MessageKey = "missing_base_date"
	MsgMissingRule        MessageKey = "missing_rule"
	MsgMissingTaxVersion  MessageKey = "missing_tax_version"
	MsgMissingFeeVersion  MessageKey = "missing_fee_version"
	MsgMissingTax         MessageKey = "missing_tax"
	MsgMissingFee         MessageKey = "missing_fee"
	MsgRuleError          MessageKey = "rule_error"
	MsgRuleWarning        MessageKey = "rule_warning"
	MsgFrequencyMismatch  MessageKey = "frequency_mismatch"
	MsgUnknownFrequency   MessageKey = "unknown_frequency"
	MsgBadTaxVersion      MessageKey = "bad_tax_version"
	MsgBadFeeVersion      MessageKey = "bad_fee_version"
	MsgUnknownRatedObject MessageKey = "unknown_rated_object"
)

var catalog = map[MessageKey]string{
	MsgMissingBaseDate:    "A base date must be provided !",
	MsgMissingRule:        "Component %s has no rule configured",
	MsgMissingTaxVersion:  "No version of tax %s at %s",
	MsgMissingFeeVersion:  "No version of fee %s at %s",
	MsgMissingTax:         "Component %s has no tax configured",
	MsgMissingFee:         "Component %s has no fee configured",
	MsgRuleError:          "Rule %s : %s",
	MsgRuleWarning:        "Rule %s : %s",
	MsgFrequencyMismatch:  "Frequencies do not match (%s, %s)",
	MsgUnknownFrequency:   "Unknown frequency %s",
	MsgBadTaxVersion:      "%s : Rule combination unavailable with tax (%s) version (%s)",
	MsgBadFeeVersion:      "%s : Rule combination unavailable with fee (%s) version (%s)",
	MsgUnknownRatedObject: "Unknown rated object kind %s",
}

// Message is a (key, args) pair rendered through the catalog.
type Message struct {
	Key  MessageKey
	Args []any
}

func NewMessage(key MessageKey, args ...any) Message {
	return Message{Key: key, Args: args}
}

func (m Message) String() string {
	format, ok := catalog[m.Key]
	if !ok {
		return string(m.Key)
	}
	if len(m.Args) == 0 {
		return format
	}
	return fmt.Sprintf(format, m.Args...)
}

// Messages renders a list of messages.
func Messages(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.String()
	}
	return out
}

// HasKey reports whether msgs contains key.
func HasKey(msgs []Message, key MessageKey) bool {
	for _, m := range msgs {
		if m.Key == key {
			return true
		}
	}
	return false
}
