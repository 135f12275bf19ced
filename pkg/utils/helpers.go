package utils

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// CalculateMD5 computes the MD5 hash of a byte slice.
func CalculateMD5(data []byte) string {
	hasher := md5.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

// MonthKey 返回 UTC 年月，例如 202610，用于按月计数的键
func MonthKey(t time.Time) string {
	return t.UTC().Format("200601")
}
