package client

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/taoyao-code/packetcmd/internal/protocol/codec"
)

// 参数写法 kind:value，例如 i32:-5、f32:1.5、u8:3、hex:0a0b、str:abc
// 解码格式为 kind 列表，例如 i32,f32；rest 读取剩余全部字节。

// PackArg 按 kind:value 写入一个字段
func PackArg(out *codec.Buffer, arg string) error {
	kind, val, ok := strings.Cut(arg, ":")
	if !ok {
		return fmt.Errorf("argument %q: want kind:value", arg)
	}
	var err error
	switch kind {
	case "u8", "i8", "u16", "i16", "u32", "i32", "u64", "i64":
		err = packInt(out, kind, val)
	case "f32":
		var f float64
		if f, err = strconv.ParseFloat(val, 32); err == nil {
			err = out.PackFloat32(float32(f))
		}
	case "f64":
		var f float64
		if f, err = strconv.ParseFloat(val, 64); err == nil {
			err = out.PackFloat64(f)
		}
	case "hex":
		var b []byte
		if b, err = hex.DecodeString(strings.ReplaceAll(val, " ", "")); err == nil {
			err = out.PackBytes(b)
		}
	case "str":
		err = out.PackString(val)
	default:
		return fmt.Errorf("argument %q: unknown kind %q", arg, kind)
	}
	if err != nil {
		return fmt.Errorf("argument %q: %w", arg, err)
	}
	return nil
}

func packInt(out *codec.Buffer, kind, val string) error {
	bits, _ := strconv.Atoi(kind[1:])
	if kind[0] == 'u' {
		v, err := strconv.ParseUint(val, 0, bits)
		if err != nil {
			return err
		}
		switch bits {
		case 8:
			return out.PackUint8(uint8(v))
		case 16:
			return out.PackUint16(uint16(v))
		case 32:
			return out.PackUint32(uint32(v))
		}
		return out.PackUint64(v)
	}
	v, err := strconv.ParseInt(val, 0, bits)
	if err != nil {
		return err
	}
	switch bits {
	case 8:
		return out.PackInt8(int8(v))
	case 16:
		return out.PackInt16(int16(v))
	case 32:
		return out.PackInt32(int32(v))
	}
	return out.PackInt64(v)
}

// UnpackAll 按格式列表从游标处依次解码
func UnpackAll(in *codec.Buffer, kinds []string) ([]any, error) {
	out := make([]any, 0, len(kinds))
	for _, k := range kinds {
		var (
			v   any
			err error
		)
		switch strings.TrimSpace(k) {
		case "u8":
			v, err = in.UnpackUint8()
		case "i8":
			v, err = in.UnpackInt8()
		case "u16":
			v, err = in.UnpackUint16()
		case "i16":
			v, err = in.UnpackInt16()
		case "u32":
			v, err = in.UnpackUint32()
		case "i32":
			v, err = in.UnpackInt32()
		case "u64":
			v, err = in.UnpackUint64()
		case "i64":
			v, err = in.UnpackInt64()
		case "f32":
			v, err = in.UnpackFloat32()
		case "f64":
			v, err = in.UnpackFloat64()
		case "rest":
			var b []byte
			b, err = in.UnpackRest()
			v = hex.EncodeToString(b)
		default:
			return out, fmt.Errorf("unknown kind %q", k)
		}
		if err != nil {
			return out, fmt.Errorf("field %d (%s): %w", len(out), k, err)
		}
		out = append(out, v)
	}
	return out, nil
}
