// Package verification 实现会话级身份验证：订单要素匹配到 partial，
// 邮箱 OTP 到 full。级别只升不降，随会话销毁。
package verification

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

const otpDigits = 6

// GenerateOTP 生成 6 位数字验证码，使用加密随机源
func GenerateOTP() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// HashOTP 验证码只存散列，明文不落任何存储
func HashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// VerifyOTPHash 常数时间比较提交的验证码与存储散列
func VerifyOTPHash(code, storedHash string) bool {
	submitted := HashOTP(code)
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(storedHash)) == 1
}

// MaskOTP 日志用掩码，只露末两位
func MaskOTP(code string) string {
	if len(code) < 2 {
		return "****"
	}
	return "****" + code[len(code)-2:]
}
