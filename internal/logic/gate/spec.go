package gate

import (
	"fmt"
	"strconv"
	"strings"

	"x402-gate-sol/internal/consts"
	"x402-gate-sol/internal/types"
)

// Spec 是一个门控的参数：价格档位与收款地址。
// Token 与 FacilitatorFee 会被解析并记录，但不参与校验。
type Spec struct {
	Price          uint64
	Recipient      types.Pubkey
	Token          types.Pubkey
	FacilitatorFee uint8
}

// ParseSpec 解析属性风格的门控参数，例如：
//
//	price = 5_000_000, recipient = "ESPy...", token = "1111...", facilitator_fee = 1
//
// 未声明 price 时使用 consts.DefaultPrice；未声明 recipient 时使用 defaultRecipient；
// 未声明 token 时为 System Program（原生 SOL）。数字支持 "_" 分隔符。
func ParseSpec(args string, defaultRecipient types.Pubkey) (Spec, error) {
	spec := Spec{
		Price:     consts.DefaultPrice,
		Recipient: defaultRecipient,
		Token:     consts.SystemProgram,
	}

	for _, part := range strings.Split(args, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Spec{}, fmt.Errorf("gate spec: missing '=' in %q", part)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)

		switch key {
		case "price":
			price, err := parseUint(value, 64)
			if err != nil {
				return Spec{}, fmt.Errorf("gate spec: invalid price %q: %w", value, err)
			}
			spec.Price = price
		case "recipient":
			pk, err := types.TryPubkeyFromBase58(value)
			if err != nil {
				return Spec{}, fmt.Errorf("gate spec: invalid recipient: %w", err)
			}
			spec.Recipient = pk
		case "token":
			pk, err := types.TryPubkeyFromBase58(value)
			if err != nil {
				return Spec{}, fmt.Errorf("gate spec: invalid token: %w", err)
			}
			spec.Token = pk
		case "facilitator_fee":
			fee, err := parseUint(value, 8)
			if err != nil {
				return Spec{}, fmt.Errorf("gate spec: invalid facilitator_fee %q: %w", value, err)
			}
			spec.FacilitatorFee = uint8(fee)
		default:
			return Spec{}, fmt.Errorf("gate spec: unknown key %q", key)
		}
	}
	return spec, nil
}

func parseUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 10, bits)
}

func (s Spec) String() string {
	return fmt.Sprintf("price=%d recipient=%s token=%s facilitator_fee=%d", s.Price, s.Recipient, s.Token, s.FacilitatorFee)
}
