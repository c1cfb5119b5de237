package loader

import (
	"math"

	lua "github.com/Shopify/go-lua"
)

// pushMap pushes a Go map onto the stack as a Lua table.
func pushMap(l *lua.State, fields map[string]any) {
	l.NewTable()
	for name, value := range fields {
		pushValue(l, value)
		l.SetField(-2, name)
	}
}

// pushValue pushes a Go value onto the stack as its Lua counterpart. Values
// outside the payload vocabulary push nil rather than fault: the payloads
// crossing this boundary are built from plain maps, slices and scalars.
func pushValue(l *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case int:
		l.PushInteger(v)
	case int64:
		l.PushInteger(int(v))
	case float64:
		l.PushNumber(v)
	case string:
		l.PushString(v)
	case []string:
		l.NewTable()
		for i, item := range v {
			l.PushString(item)
			l.RawSetInt(-2, i+1)
		}
	case []any:
		l.NewTable()
		for i, item := range v {
			pushValue(l, item)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		pushMap(l, v)
	default:
		l.PushNil()
	}
}

// tableToMap converts the Lua table at index into a Go map, keeping string
// keys only.
func tableToMap(l *lua.State, index int) map[string]any {
	output := map[string]any{}
	if l.TypeOf(index) != lua.TypeTable {
		return output
	}

	index = l.AbsIndex(index)
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) == lua.TypeString {
			key, _ := l.ToString(-2)
			output[key] = luaToGo(l, -1)
		}
		l.Pop(1)
	}
	return output
}

// luaToGo converts the Lua value at index into a Go value.
func luaToGo(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		value, _ := l.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := l.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(l, index)
	default:
		return nil
	}
}

// tableToGo converts a Lua table into a Go slice when its keys form a dense
// 1..n sequence, and a map otherwise.
func tableToGo(l *lua.State, index int) any {
	if l.TypeOf(index) != lua.TypeTable {
		return nil
	}

	index = l.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0
	l.PushNil()
	for l.Next(index) {
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := l.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			result = append(result, luaToGo(l, -1))
			l.Pop(1)
		}
		return result
	}

	return tableToMap(l, index)
}

// normalizeNumber keeps whole Lua numbers as Go ints so round numbers and
// scores survive the boundary without float noise.
func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 {
		return int(value)
	}
	return value
}
