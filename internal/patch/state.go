package patch

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"pagepatch/pkg/contract"
)

// Option 调整状态片段的生成。
type Option func(*stateOptions)

type stateOptions struct {
	service string
	method  string
	bind    bool
}

// WithServiceBinding 以 <service>.<method>() 替换占位调用。
// 未设置时片段保留 SERVICE_NAME.getMethod() 原样。
func WithServiceBinding(service, method string) Option {
	return func(o *stateOptions) {
		o.service = service
		o.method = method
		o.bind = true
	}
}

// InjectState 在 `const <name> = () => {` 之后插入固定状态片段。
// 仅匹配无参箭头函数声明；带参数的声明不匹配（Unchanged/component_not_found）。
// name 在拼入模式前转义。
func InjectState(doc contract.Document, name contract.ComponentName, opts ...Option) (Result, error) {
	var o stateOptions
	for _, fn := range opts {
		fn(&o)
	}
	re, err := componentPattern(name)
	if err != nil {
		return Result{Doc: doc, Outcome: contract.Unchanged}, err
	}
	call := ""
	if o.bind {
		if !isIdent(o.service) || !isIdent(o.method) {
			return Result{Doc: doc, Outcome: contract.Unchanged},
				fmt.Errorf("%w: service binding %q.%q", contract.ErrPatternInvalid, o.service, o.method)
		}
		call = o.service + "." + o.method + "()"
	}

	text := doc.Text()
	loc := re.FindStringIndex(text)
	if loc == nil {
		return Result{Doc: doc, Outcome: contract.Unchanged, Reason: contract.ReasonComponentNotFound}, nil
	}
	end := loc[1]
	var b strings.Builder
	b.Grow(len(text) + len(stateTemplate) + 1)
	b.WriteString(text[:end])
	b.WriteByte('\n')
	b.WriteString(StateBlock(call))
	b.WriteString(text[end:])
	return Result{Doc: contract.NewDocument(b.String()), Outcome: contract.Changed}, nil
}

func componentPattern(name contract.ComponentName) (*regexp.Regexp, error) {
	n := string(name)
	if n == "" || strings.IndexFunc(n, unicode.IsSpace) >= 0 {
		return nil, fmt.Errorf("%w: component name %q", contract.ErrPatternInvalid, n)
	}
	return regexp.Compile(`const ` + regexp.QuoteMeta(n) + ` = \(\) => \{`)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '$' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
