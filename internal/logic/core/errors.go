package core

import (
	"errors"
	"fmt"
)

// ErrorCode 是程序返回给调用方的结构化错误码。
// 所有错误在本次尝试内都是终态：不重试，直接中止整笔交易。
type ErrorCode uint32

// Anchor 自定义错误码，与链上程序保持一致（从 6000 开始）
const (
	InsufficientPayment ErrorCode = 6000 + iota
	InvalidPaymentAmount
	InvalidPaymentRecipient
	PaymentVerificationFailed
	InsufficientBalance
)

// 支付门控相关错误
const (
	MissingIntrospectionSource ErrorCode = 7000 + iota
	IndexOutOfRange
	MissingPaymentInstruction
	MalformedPaymentPayload
	InvalidRecipient
)

// 运行时（宿主环境）错误
const (
	ProgramNotFound ErrorCode = 8000 + iota
	UnknownInstruction
	InvalidInstructionData
	NotEnoughAccountKeys
	MissingSigner
	AccountAlreadyInitialized
	InvalidLedgerAccount
	ArithmeticOverflow
	EmptyTransaction
	TransactionTooLarge
)

var codeMessages = map[ErrorCode]string{
	InsufficientPayment:       "Insufficient payment for x402 access",
	InvalidPaymentAmount:      "Invalid payment amount",
	InvalidPaymentRecipient:   "Payment recipient not valid",
	PaymentVerificationFailed: "Payment verification failed",
	InsufficientBalance:       "Insufficient balance for payment",

	MissingIntrospectionSource: "Instruction introspection source unavailable",
	IndexOutOfRange:            "Instruction index out of range",
	MissingPaymentInstruction:  "No payment instruction precedes the gated call",
	MalformedPaymentPayload:    "Payment instruction payload has unsupported layout",
	InvalidRecipient:           "Payment instruction recipient mismatch",

	ProgramNotFound:           "Program not found",
	UnknownInstruction:        "Unknown instruction",
	InvalidInstructionData:    "Invalid instruction data",
	NotEnoughAccountKeys:      "Not enough account keys",
	MissingSigner:             "Missing required signature",
	AccountAlreadyInitialized: "Account already initialized",
	InvalidLedgerAccount:      "Payment ledger account address mismatch",
	ArithmeticOverflow:        "Arithmetic overflow",
	EmptyTransaction:          "Transaction has no instructions",
	TransactionTooLarge:       "Transaction too large",
}

func (c ErrorCode) Error() string {
	if msg, ok := codeMessages[c]; ok {
		return fmt.Sprintf("%s (code %d)", msg, uint32(c))
	}
	return fmt.Sprintf("unknown error (code %d)", uint32(c))
}

// CodeOf 从错误链中提取 ErrorCode
func CodeOf(err error) (ErrorCode, bool) {
	var code ErrorCode
	if errors.As(err, &code) {
		return code, true
	}
	return 0, false
}

// InstructionError 标记是交易中的哪一条指令导致了中止
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d failed: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}
