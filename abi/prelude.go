package abi

import (
	"github.com/dop251/goja"
)

// The prelude captures builtins at context creation so later script
// changes to globals cannot alter engine behaviour.
const preludeSource = `(function () {
	var isArray = Array.isArray, isView = ArrayBuffer.isView;
	var AB = ArrayBuffer, DV = DataView, Err = Error;
	var gopn = Object.getOwnPropertyNames, gpo = Object.getPrototypeOf;
	var spo = Object.setPrototypeOf, dp = Object.defineProperty;
	var apply = Reflect.apply, Sym = Symbol;
	var Str = String, Num = Number, Bool = Boolean;
	return {
		// results match ValueType
		kind: function (v) {
			if (isArray(v)) return 8;
			if (v instanceof AB) return 10;
			if (v instanceof DV) return 12;
			if (isView(v)) return 11;
			if (v instanceof Err) return 7;
			return 5;
		},
		has: function (o, k) { return k in o; },
		del: function (o, k) { return delete o[k]; },
		names: function (o) { return gopn(o); },
		getProto: function (o) { return gpo(o); },
		setProto: function (o, p) { spo(o, p); },
		getIndex: function (o, i) { return o[i]; },
		setIndex: function (o, i, v) { o[i] = v; },
		symbol: function (d) { return d === undefined ? Sym() : Sym(d); },
		toStr: function (v) { return Str(v); },
		toNum: function (v) { return Num(v); },
		toBool: function (v) { return Bool(v); },
		wrap: function (call, construct, name) {
			var f = function () {
				if (new.target === undefined) {
					return apply(call, this, arguments);
				}
				var r = apply(construct, this, arguments);
				if (r !== null && (typeof r === 'object' || typeof r === 'function')) {
					return r;
				}
				return this;
			};
			dp(f, 'name', { value: name, configurable: true });
			return f;
		}
	};
})()`

var prelude = goja.MustCompile("prelude.js", preludeSource, false)

type helpers struct {
	kind, has, del, names        goja.Callable
	getProto, setProto           goja.Callable
	getIndex, setIndex           goja.Callable
	symbol, toStr, toNum, toBool goja.Callable
	wrap                         goja.Callable

	errCtor    goja.Value
	rangeCtor  goja.Value
	refCtor    goja.Value
	syntaxCtor goja.Value
	typeCtor   goja.Value
	uriCtor    goja.Value
}

func newHelpers(vm *goja.Runtime) (*helpers, error) {
	v, err := vm.RunProgram(prelude)
	if err != nil {
		return nil, err
	}
	obj := v.ToObject(vm)
	fn := func(name string) goja.Callable {
		f, _ := goja.AssertFunction(obj.Get(name))
		return f
	}
	return &helpers{
		kind:       fn("kind"),
		has:        fn("has"),
		del:        fn("del"),
		names:      fn("names"),
		getProto:   fn("getProto"),
		setProto:   fn("setProto"),
		getIndex:   fn("getIndex"),
		setIndex:   fn("setIndex"),
		symbol:     fn("symbol"),
		toStr:      fn("toStr"),
		toNum:      fn("toNum"),
		toBool:     fn("toBool"),
		wrap:       fn("wrap"),
		errCtor:    vm.Get("Error"),
		rangeCtor:  vm.Get("RangeError"),
		refCtor:    vm.Get("ReferenceError"),
		syntaxCtor: vm.Get("SyntaxError"),
		typeCtor:   vm.Get("TypeError"),
		uriCtor:    vm.Get("URIError"),
	}, nil
}

// disableEval replaces the global eval with a function that throws.
func disableEval(vm *goja.Runtime) error {
	return vm.Set("eval", func(goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("eval is disabled in this runtime"))
	})
}
