//go:build js && wasm

// Package main exposes an afhe ffi session to JavaScript as globalThis.afhe.
//
// Objects are numeric handles. Byte artifacts travel as Uint8Array. Failing
// calls return the ffi sentinel (0, -1, null or "") and leave the message in
// afhe.lastError():
//
//	const ctx = afhe.initBackend(afhe.backendFromString("lux"))
//	afhe.generateContext(ctx, afhe.schemeFromString("bfv"), 1024, 0, 12289, 128, [])
//	afhe.generateKeys(ctx)
//	const ct = afhe.encrypt(ctx, afhe.newPlaintext(ctx, "64"))
package main

import (
	"fmt"
	"syscall/js"

	"github.com/luxfi/afhe"
	"github.com/luxfi/afhe/ffi"
)

var session = ffi.NewSession()

func handle(v js.Value) ffi.Handle { return ffi.Handle(v.Float()) }

func handleValue(h ffi.Handle) any { return float64(h) }

func bytesArg(v js.Value) []byte {
	b := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(b, v)
	return b
}

func bytesValue(b []byte) any {
	if b == nil {
		return js.Null()
	}
	arr := js.Global().Get("Uint8Array").New(len(b))
	js.CopyBytesToJS(arr, b)
	return arr
}

func ints(v js.Value) []int {
	out := make([]int, v.Length())
	for i := range out {
		out[i] = v.Index(i).Int()
	}
	return out
}

func floats(v js.Value) []float64 {
	out := make([]float64, v.Length())
	for i := range out {
		out[i] = v.Index(i).Float()
	}
	return out
}

// fn wraps impl and reports a missing argument through the error slot.
func fn(name string, argc int, impl func(args []js.Value) any) js.Func {
	return js.FuncOf(func(_ js.Value, args []js.Value) any {
		if len(args) < argc {
			session.Report(&afhe.Error{
				Kind: afhe.KindInvalidArgument,
				Msg:  fmt.Sprintf("%s: need %d arguments, got %d", name, argc, len(args)),
			})
			return js.Null()
		}
		return impl(args)
	})
}

func binary(name string, op func(ctx, a, b ffi.Handle) ffi.Handle) js.Func {
	return fn(name, 3, func(a []js.Value) any {
		return handleValue(op(handle(a[0]), handle(a[1]), handle(a[2])))
	})
}

func unary(name string, op func(ctx, a ffi.Handle) ffi.Handle) js.Func {
	return fn(name, 2, func(a []js.Value) any {
		return handleValue(op(handle(a[0]), handle(a[1])))
	})
}

func exports() map[string]js.Func {
	s := session
	return map[string]js.Func{
		"lastError":  fn("lastError", 0, func([]js.Value) any { return s.LastError() }),
		"lastCode":   fn("lastCode", 0, func([]js.Value) any { return s.LastCode() }),
		"clearError": fn("clearError", 0, func([]js.Value) any { s.ClearError(); return nil }),
		"free":       fn("free", 1, func(a []js.Value) any { return s.Free(handle(a[0])) }),

		"backendFromString":     fn("backendFromString", 1, func(a []js.Value) any { return s.BackendFromString(a[0].String()) }),
		"schemeFromString":      fn("schemeFromString", 1, func(a []js.Value) any { return s.SchemeFromString(a[0].String()) }),
		"keyTypeFromString":     fn("keyTypeFromString", 1, func(a []js.Value) any { return s.KeyTypeFromString(a[0].String()) }),
		"compressionFromString": fn("compressionFromString", 1, func(a []js.Value) any { return s.CompressionFromString(a[0].String()) }),

		"initBackend": fn("initBackend", 1, func(a []js.Value) any { return handleValue(s.InitBackend(a[0].Int())) }),
		"generateContext": fn("generateContext", 7, func(a []js.Value) any {
			return s.GenerateContext(handle(a[0]), a[1].Int(), a[2].Int(), a[3].Int(), uint64(a[4].Float()), a[5].Int(), ints(a[6]))
		}),
		"generateContextFromBlob": fn("generateContextFromBlob", 3, func(a []js.Value) any {
			return s.GenerateContextFromBlob(handle(a[0]), bytesArg(a[1]), a[2].Bool())
		}),
		"disableModSwitch": fn("disableModSwitch", 1, func(a []js.Value) any { return s.DisableModSwitch(handle(a[0])) }),
		"saveParameters": fn("saveParameters", 2, func(a []js.Value) any {
			return bytesValue(s.SaveParameters(handle(a[0]), a[1].Int()))
		}),
		"slotCount": fn("slotCount", 1, func(a []js.Value) any { return s.SlotCount(handle(a[0])) }),

		"generateKeys":       fn("generateKeys", 1, func(a []js.Value) any { return s.GenerateKeys(handle(a[0])) }),
		"generateRelinKeys":  fn("generateRelinKeys", 1, func(a []js.Value) any { return s.GenerateRelinKeys(handle(a[0])) }),
		"generateGaloisKeys": fn("generateGaloisKeys", 1, func(a []js.Value) any { return s.GenerateGaloisKeys(handle(a[0])) }),
		"generateKeysFromSecret": fn("generateKeysFromSecret", 2, func(a []js.Value) any {
			return s.GenerateKeysFromSecret(handle(a[0]), handle(a[1]))
		}),
		"getKey": fn("getKey", 2, func(a []js.Value) any { return handleValue(s.GetKey(handle(a[0]), a[1].Int())) }),
		"setEvaluationKey": fn("setEvaluationKey", 2, func(a []js.Value) any {
			return s.SetEvaluationKey(handle(a[0]), handle(a[1]))
		}),
		"loadKey": fn("loadKey", 3, func(a []js.Value) any {
			return handleValue(s.LoadKey(handle(a[0]), a[1].Int(), bytesArg(a[2])))
		}),

		"newPlaintext": fn("newPlaintext", 2, func(a []js.Value) any {
			return handleValue(s.NewPlaintext(handle(a[0]), a[1].String()))
		}),
		"newPlaintextDecimal": fn("newPlaintextDecimal", 2, func(a []js.Value) any {
			return handleValue(s.NewPlaintextDecimal(handle(a[0]), a[1].String()))
		}),
		"plaintextValue":   fn("plaintextValue", 1, func(a []js.Value) any { return s.PlaintextValue(handle(a[0])) }),
		"plaintextDecimal": fn("plaintextDecimal", 1, func(a []js.Value) any { return s.PlaintextDecimal(handle(a[0])) }),
		"encodeDouble": fn("encodeDouble", 2, func(a []js.Value) any {
			return handleValue(s.EncodeDouble(handle(a[0]), floats(a[1])))
		}),
		"decodeDouble": fn("decodeDouble", 2, func(a []js.Value) any {
			vs := s.DecodeDouble(handle(a[0]), handle(a[1]))
			if vs == nil {
				return js.Null()
			}
			out := make([]any, len(vs))
			for i, v := range vs {
				out[i] = v
			}
			return out
		}),

		"encrypt": unary("encrypt", s.Encrypt),
		"decrypt": unary("decrypt", s.Decrypt),
		"loadCiphertext": fn("loadCiphertext", 2, func(a []js.Value) any {
			return handleValue(s.LoadCiphertext(handle(a[0]), bytesArg(a[1])))
		}),
		"save": fn("save", 2, func(a []js.Value) any { return bytesValue(s.Save(handle(a[0]), a[1].Int())) }),
		"noiseBudget": fn("noiseBudget", 2, func(a []js.Value) any {
			return s.NoiseBudget(handle(a[0]), handle(a[1]))
		}),

		"add":             binary("add", s.Add),
		"subtract":        binary("subtract", s.Subtract),
		"multiply":        binary("multiply", s.Multiply),
		"addPlain":        binary("addPlain", s.AddPlain),
		"subtractPlain":   binary("subtractPlain", s.SubtractPlain),
		"multiplyPlain":   binary("multiplyPlain", s.MultiplyPlain),
		"square":          unary("square", s.Square),
		"negate":          unary("negate", s.Negate),
		"relinearize":     unary("relinearize", s.Relinearize),
		"modSwitchToNext": unary("modSwitchToNext", s.ModSwitchToNext),
		"rescale":         unary("rescale", s.Rescale),
		"power": fn("power", 3, func(a []js.Value) any {
			return handleValue(s.Power(handle(a[0]), handle(a[1]), uint64(a[2].Float())))
		}),
		"rotate": fn("rotate", 3, func(a []js.Value) any {
			return handleValue(s.Rotate(handle(a[0]), handle(a[1]), a[2].Int()))
		}),
	}
}

func main() {
	obj := js.Global().Get("Object").New()
	for name, f := range exports() {
		obj.Set(name, f)
	}
	js.Global().Set("afhe", obj)
	select {}
}
