package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	// AccessCodePrefix 是所有访问码的固定前缀。
	AccessCodePrefix = "MEET"

	accessCodeAlphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	accessCodeRandomLen = 6
)

var accessCodePattern = regexp.MustCompile(`^` + AccessCodePrefix + `[0-9A-Z]{6}$`)

// GenerateAccessCode 生成 "MEET" + 6 位大写 base-36 随机字符的访问码。
// 唯一性由存储层的唯一索引保证，调用方在冲突时重试。
func GenerateAccessCode() (string, error) {
	var sb strings.Builder
	sb.Grow(len(AccessCodePrefix) + accessCodeRandomLen)
	sb.WriteString(AccessCodePrefix)
	max := big.NewInt(int64(len(accessCodeAlphabet)))
	for i := 0; i < accessCodeRandomLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random access code: %w", err)
		}
		sb.WriteByte(accessCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NormalizeAccessCode 将用户输入的访问码转换为存储格式 (大写)。
func NormalizeAccessCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidAccessCode 检查访问码格式，输入不区分大小写。
func IsValidAccessCode(code string) bool {
	return accessCodePattern.MatchString(NormalizeAccessCode(code))
}
