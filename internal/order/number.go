package order

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const tokenLen = 9

// NewOrderNumber 由毫秒时间戳加 9 位 base36 随机段组成，不做碰撞检查，唯一索引兜底。
func NewOrderNumber(now time.Time) string {
	id := uuid.New()
	token := new(big.Int).SetBytes(id[:]).Text(36)
	if len(token) < tokenLen {
		token = strings.Repeat("0", tokenLen-len(token)) + token
	}
	return fmt.Sprintf("CMD-%d-%s", now.UnixMilli(), token[len(token)-tokenLen:])
}
