package host

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// installConsole: log/info/debug feed the output sink, error/warn go to
// stderr prefixed with "[err]: ".
func (h *Host) installConsole() error {
	toSink := func(call goja.FunctionCall) goja.Value {
		if err := h.out.Push(h.format(call.Arguments)); err != nil {
			panic(h.vm.NewGoError(err))
		}
		return goja.Undefined()
	}
	toStderr := func(call goja.FunctionCall) goja.Value {
		fmt.Fprintf(h.stderr, "[err]: %s\n", h.format(call.Arguments))
		return goja.Undefined()
	}

	c := h.vm.NewObject()
	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"log":   toSink,
		"info":  toSink,
		"debug": toSink,
		"error": toStderr,
		"warn":  toStderr,
	} {
		if err := c.Set(name, fn); err != nil {
			return err
		}
	}
	return h.vm.Set("console", c)
}

// format joins the arguments with a space: strings verbatim, errors as
// "Name: message", anything else through JSON.stringify.
func (h *Host) format(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = h.formatValue(a)
	}
	return strings.Join(parts, " ")
}

func (h *Host) formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if s, ok := v.Export().(string); ok {
		return s
	}
	obj, isObj := v.(*goja.Object)
	if isObj && (obj.ClassName() == "Error" || obj.ClassName() == "Function") {
		return v.String()
	}

	stringify, ok := goja.AssertFunction(h.vm.Get("JSON").ToObject(h.vm).Get("stringify"))
	if !ok {
		return v.String()
	}
	out, err := stringify(goja.Undefined(), v)
	if err != nil || out == nil || goja.IsUndefined(out) {
		return v.String()
	}
	return out.String()
}
