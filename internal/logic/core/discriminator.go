package core

import (
	"crypto/sha256"
	"encoding/binary"
)

// Discriminator 计算 Anchor 风格的 8 字节前缀：sha256("<namespace>:<name>")[:8]，
// 以大端 uint64 返回，便于和常量比较（与 binary.BigEndian.Uint64(data[:8]) 对齐）。
func Discriminator(namespace, name string) uint64 {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	return binary.BigEndian.Uint64(sum[:8])
}

// ReadDiscriminator 读取数据前 8 字节，长度不足返回 false
func ReadDiscriminator(data []byte) (uint64, bool) {
	if len(data) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data[:8]), true
}

// putDiscriminator 以大端写入 8 字节前缀
func putDiscriminator(buf []byte, disc uint64) {
	binary.BigEndian.PutUint64(buf[:8], disc)
}
