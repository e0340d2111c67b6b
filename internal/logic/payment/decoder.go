package payment

import (
	"encoding/binary"
	"errors"
	"fmt"

	"x402-gate-sol/internal/logic/core"
)

// AmountDecoder 从支付指令数据中解码支付金额。
// 支付指令格式由外部程序定义，新增编码时只需新增一个 decoder。
type AmountDecoder func(data []byte) (uint64, error)

// DualLayoutDecoder 兼容两种外部支付指令格式：
//   - len >= 16：前 8 字节为外部指令 selector，金额为 [8,16) 小端 u64
//   - len == 8 ：无 selector，金额为 [0,8) 小端 u64
//
// 其余长度返回 MalformedPaymentPayload。
func DualLayoutDecoder(data []byte) (uint64, error) {
	switch {
	case len(data) >= 16:
		return binary.LittleEndian.Uint64(data[8:16]), nil
	case len(data) == 8:
		return binary.LittleEndian.Uint64(data[0:8]), nil
	default:
		return 0, fmt.Errorf("%w: data length %d", core.MalformedPaymentPayload, len(data))
	}
}

// ChainDecoders 依次尝试多个 decoder，返回第一个成功的结果；全部失败时返回合并后的错误
func ChainDecoders(decoders ...AmountDecoder) AmountDecoder {
	return func(data []byte) (uint64, error) {
		if len(decoders) == 0 {
			return 0, fmt.Errorf("%w: no decoder configured", core.MalformedPaymentPayload)
		}
		var errs []error
		for _, decode := range decoders {
			amount, err := decode(data)
			if err == nil {
				return amount, nil
			}
			errs = append(errs, err)
		}
		return 0, errors.Join(errs...)
	}
}
