package optimizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/stepwise/api/schemas"
)

var (
	// Matched as case-insensitive substrings, so "btnSubmit", "Autosave" and
	// "TopNav" all count.
	navigationKeywords = []string{"menu", "nav", "dropdown", "expand", "collapse", "more", "toggle", "open", "close", "hamburger"}
	actionKeywords     = []string{"submit", "save", "create", "delete", "remove", "add", "update", "confirm", "cancel", "send", "upload", "download", "export", "import"}

	navigationKeys = map[string]struct{}{
		"tab": {}, "escape": {}, "esc": {},
		"arrowup": {}, "arrowdown": {}, "arrowleft": {}, "arrowright": {},
		"up": {}, "down": {}, "left": {}, "right": {},
	}

	// Structural landmarks in a selector: nav, #sidebar, .site-header, [role=menu] ...
	landmarkSelector = regexp.MustCompile(`(^|[^a-z0-9])(nav|navbar|navigation|sidenav|sidebar|menu|menubar|menuitem|header|breadcrumbs?|drawer)([^a-z0-9]|$)`)
	// Menu classes of common UI frameworks (Bootstrap, Angular Material, Ant, MUI, Element, PrimeNG).
	frameworkMenuSelector = regexp.MustCompile(`\.(dropdown-(menu|item|toggle)|navbar(-[a-z]+)?|nav-(link|item)|menu-item|mat-menu[a-z-]*|ant-(menu|dropdown)[a-z-]*|muimenu[a-z-]*|muilistitem[a-z-]*|el-menu[a-z-]*|p-menuitem[a-z-]*)`)
	// An anchor element anywhere in the selector chain: "a", "nav > a.item", "li a[href]".
	anchorSelector = regexp.MustCompile(`(^|[\s>+~,(])a($|[.#\[:\s>+~,)])`)
)

// ClassifyStep applies the rule table to a single step. index is the step's
// position in the original workflow. Rule verdicts always carry confidence 1.
func ClassifyStep(step schemas.WorkflowStep, index int) schemas.StepClassificationResult {
	class, reason := classify(step)
	return schemas.NewVerdict(index, class, 1.0, reason, schemas.DecisionRuleBased)
}

func classify(step schemas.WorkflowStep) (schemas.Classification, string) {
	switch {
	case step.Type == "":
		return schemas.ClassNecessary, "step has no type tag; kept unmodified"
	case !step.Type.IsElementStep():
		return schemas.ClassOptimizable, fmt.Sprintf("%s is a non-element marker", step.Type)
	case step.Type == schemas.StepInput:
		return schemas.ClassNecessary, "input step changes application state"
	case len(step.InputDetails) > 0:
		return schemas.ClassNecessary, "step carries form field details"
	case len(step.FormContext) > 0:
		return schemas.ClassNecessary, "step interacts with a form"
	case step.HasClipboardData():
		return schemas.ClassNecessary, "step uses the clipboard"
	}

	if step.Type == schemas.StepKeyboard {
		if key, ok := navigationKey(step); !ok {
			return schemas.ClassNecessary, fmt.Sprintf("keyboard input %q is not a navigation key", key)
		}
		// Navigation keys fall through; nothing below claims them.
	}

	switch step.Type {
	case schemas.StepNavigation:
		return schemas.ClassOptimizable, "navigation step is replaced by a direct navigation"
	case schemas.StepScroll:
		return schemas.ClassOptimizable, "scrolling does not change application state"
	case schemas.StepClick:
		return classifyClick(step)
	}
	return schemas.ClassUncertain, fmt.Sprintf("no rule covers %s steps", step.Type)
}

// navigationKey reports whether a keyboard step only moves focus or closes
// an overlay. Chords with ctrl, alt or meta are shortcuts and never count.
func navigationKey(step schemas.WorkflowStep) (string, bool) {
	payload, ok := step.Payload.(schemas.KeyboardPayload)
	if !ok {
		return "", false
	}
	for _, m := range payload.Modifiers {
		switch strings.ToLower(m) {
		case "ctrl", "control", "alt", "option", "meta", "cmd", "command":
			return payload.Key, false
		}
	}
	normalized := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(payload.Key))
	_, ok = navigationKeys[normalized]
	return payload.Key, ok
}

func classifyClick(step schemas.WorkflowStep) (schemas.Classification, string) {
	var text, label, role, selector, tag string
	if el := step.Element; el != nil {
		text, label, role, selector, tag = el.Text, el.Label, el.Role, el.Selector, el.TagName
	}
	payload, _ := step.Payload.(schemas.ClickPayload)
	if selector == "" {
		selector = payload.Selector
	}
	selector = strings.ToLower(selector)

	for _, field := range []string{text, label, role} {
		if kw := matchKeyword(field, navigationKeywords); kw != "" {
			return schemas.ClassOptimizable, fmt.Sprintf("click on %q matches navigation keyword %q", field, kw)
		}
	}
	if selector != "" && (landmarkSelector.MatchString(selector) || frameworkMenuSelector.MatchString(selector)) {
		return schemas.ClassOptimizable, fmt.Sprintf("selector %q targets a menu or navigation region", selector)
	}
	if strings.EqualFold(role, "link") || strings.EqualFold(tag, "a") || payload.Href != "" || anchorSelector.MatchString(selector) {
		return schemas.ClassOptimizable, "click targets a link"
	}
	for _, field := range []string{text, label} {
		if kw := matchKeyword(field, actionKeywords); kw != "" {
			return schemas.ClassNecessary, fmt.Sprintf("click on %q matches action keyword %q", field, kw)
		}
	}
	return schemas.ClassUncertain, "click target is ambiguous"
}

// matchKeyword returns the first keyword contained in s, ignoring case.
func matchKeyword(s string, keywords []string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}
