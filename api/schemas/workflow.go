package schemas

import (
	"encoding/json"
	"fmt"
)

// StepType is the tag recorded for every workflow step.
type StepType string

const (
	StepClick      StepType = "CLICK"
	StepInput      StepType = "INPUT"
	StepNavigation StepType = "NAVIGATION"
	StepKeyboard   StepType = "KEYBOARD"
	StepScroll     StepType = "SCROLL"
	StepTabSwitch  StepType = "TAB_SWITCH"
)

// IsElementStep reports whether the step type targets a DOM element or page.
// Tab bookkeeping markers are the only non-element steps.
func (t StepType) IsElementStep() bool {
	return t != StepTabSwitch
}

// StepPayload is the type-specific part of a WorkflowStep. The concrete type is
// selected by WorkflowStep.Type when decoding.
type StepPayload interface {
	// PageURL returns the effective page URL when the step was recorded, or ""
	// when the step has no navigable URL context.
	PageURL() string
}

// ClickPayload is recorded for CLICK steps.
type ClickPayload struct {
	URL      string `json:"url"`
	Selector string `json:"selector,omitempty"`
	Href     string `json:"href,omitempty"`
	Button   string `json:"button,omitempty"`
}

func (p ClickPayload) PageURL() string { return p.URL }

// InputPayload is recorded for INPUT steps.
type InputPayload struct {
	URL       string `json:"url"`
	Selector  string `json:"selector,omitempty"`
	Value     string `json:"value,omitempty"`
	InputType string `json:"inputType,omitempty"`
}

func (p InputPayload) PageURL() string { return p.URL }

// NavigationPayload is recorded for the URL change itself. URL is the destination.
type NavigationPayload struct {
	URL     string `json:"url"`
	FromURL string `json:"fromUrl,omitempty"`
}

func (p NavigationPayload) PageURL() string { return p.URL }

// KeyboardPayload is recorded for KEYBOARD steps.
type KeyboardPayload struct {
	URL       string   `json:"url"`
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers,omitempty"`
}

func (p KeyboardPayload) PageURL() string { return p.URL }

// ScrollPayload is recorded for SCROLL steps.
type ScrollPayload struct {
	URL     string `json:"url"`
	ScrollX int    `json:"scrollX,omitempty"`
	ScrollY int    `json:"scrollY,omitempty"`
}

func (p ScrollPayload) PageURL() string { return p.URL }

// TabSwitchPayload marks a change of the active tab. It has no URL context.
type TabSwitchPayload struct {
	FromTabID int    `json:"fromTabId,omitempty"`
	ToTabID   int    `json:"toTabId,omitempty"`
	Title     string `json:"title,omitempty"`
}

func (p TabSwitchPayload) PageURL() string { return "" }

// RawPayload holds the payload of a step whose type is not known to this
// package. The raw bytes are preserved so the step round-trips unchanged.
type RawPayload struct {
	URL string
	Raw json.RawMessage
}

func (p RawPayload) PageURL() string { return p.URL }

// ElementContext describes the element a step interacted with.
type ElementContext struct {
	Text     string `json:"text,omitempty"`
	Label    string `json:"label,omitempty"`
	Role     string `json:"role,omitempty"`
	Selector string `json:"selector,omitempty"`
	TagName  string `json:"tagName,omitempty"`
}

// ClipboardContext is present when the step read from or wrote to the clipboard.
type ClipboardContext struct {
	Operation string `json:"operation,omitempty"` // copy, cut, paste
	HasData   bool   `json:"hasData"`
}

// WorkflowStep is one recorded user action.
type WorkflowStep struct {
	Type      StepType
	Timestamp int64
	TabID     int
	Payload   StepPayload

	Element      *ElementContext
	FormContext  map[string]any
	InputDetails map[string]any
	GridContext  map[string]any
	Clipboard    *ClipboardContext

	// Synthetic is set on direct-navigation steps produced by the optimizer.
	Synthetic bool
}

// URL is a shortcut for the payload's effective page URL.
func (s WorkflowStep) URL() string {
	if s.Payload == nil {
		return ""
	}
	return s.Payload.PageURL()
}

// HasClipboardData reports whether the step carries clipboard-operation evidence.
func (s WorkflowStep) HasClipboardData() bool {
	return s.Clipboard != nil && (s.Clipboard.HasData || s.Clipboard.Operation != "")
}

// ElementText returns the element's visible text, if recorded.
func (s WorkflowStep) ElementText() string {
	if s.Element == nil {
		return ""
	}
	return s.Element.Text
}

// ElementLabel returns the element's accessible label, if recorded.
func (s WorkflowStep) ElementLabel() string {
	if s.Element == nil {
		return ""
	}
	return s.Element.Label
}

// NewDirectNavigation builds the synthetic step that replaces a removed chain of
// navigational steps. Timestamp and tab are taken from the step it follows.
func NewDirectNavigation(targetURL string, from WorkflowStep) WorkflowStep {
	return WorkflowStep{
		Type:      StepNavigation,
		Timestamp: from.Timestamp,
		TabID:     from.TabID,
		Payload:   NavigationPayload{URL: targetURL, FromURL: from.URL()},
		Synthetic: true,
	}
}

// Workflow is a named, ordered list of recorded steps.
type Workflow struct {
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Steps []WorkflowStep `json:"steps"`
}

// stepWire is the on-disk shape of a WorkflowStep.
type stepWire struct {
	Type         StepType          `json:"type"`
	Timestamp    int64             `json:"timestamp,omitempty"`
	TabID        int               `json:"tabId,omitempty"`
	Payload      json.RawMessage   `json:"payload,omitempty"`
	Element      *ElementContext   `json:"element,omitempty"`
	FormContext  map[string]any    `json:"formContext,omitempty"`
	InputDetails map[string]any    `json:"inputDetails,omitempty"`
	GridContext  map[string]any    `json:"gridContext,omitempty"`
	Clipboard    *ClipboardContext `json:"clipboard,omitempty"`
	Synthetic    bool              `json:"synthetic,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s WorkflowStep) MarshalJSON() ([]byte, error) {
	w := stepWire{
		Type:         s.Type,
		Timestamp:    s.Timestamp,
		TabID:        s.TabID,
		Element:      s.Element,
		FormContext:  s.FormContext,
		InputDetails: s.InputDetails,
		GridContext:  s.GridContext,
		Clipboard:    s.Clipboard,
		Synthetic:    s.Synthetic,
	}

	switch p := s.Payload.(type) {
	case nil:
	case RawPayload:
		w.Payload = p.Raw
		if len(p.Raw) == 0 && p.URL != "" {
			w.Payload, _ = json.Marshal(struct {
				URL string `json:"url"`
			}{p.URL})
		}
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", s.Type, err)
		}
		w.Payload = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. The payload is decoded into the
// concrete type selected by the step's type tag.
func (s *WorkflowStep) UnmarshalJSON(data []byte) error {
	var w stepWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	payload, err := decodePayload(w.Type, w.Payload)
	if err != nil {
		return fmt.Errorf("invalid payload for %s step: %w", w.Type, err)
	}

	*s = WorkflowStep{
		Type:         w.Type,
		Timestamp:    w.Timestamp,
		TabID:        w.TabID,
		Payload:      payload,
		Element:      w.Element,
		FormContext:  w.FormContext,
		InputDetails: w.InputDetails,
		GridContext:  w.GridContext,
		Clipboard:    w.Clipboard,
		Synthetic:    w.Synthetic,
	}
	return nil
}

func decodePayload(t StepType, raw json.RawMessage) (StepPayload, error) {
	orig := raw
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}

	switch t {
	case StepClick:
		var p ClickPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case StepInput:
		var p InputPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case StepNavigation:
		var p NavigationPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case StepKeyboard:
		var p KeyboardPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case StepScroll:
		var p ScrollPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case StepTabSwitch:
		var p TabSwitchPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	default:
		// Unknown tags keep their bytes; a top-level "url" is still honoured.
		var loc struct {
			URL string `json:"url"`
		}
		_ = json.Unmarshal(raw, &loc)
		var keep json.RawMessage
		if len(orig) > 0 {
			keep = append(keep, orig...)
		}
		return RawPayload{URL: loc.URL, Raw: keep}, nil
	}
}
