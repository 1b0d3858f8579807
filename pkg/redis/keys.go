package redis

import "fmt"

// StatsKey 统一约定报表缓存键名，args 为查询参数（如 limit）。
func StatsKey(name string, args ...any) string {
	key := "storefront:stats:" + name
	for _, a := range args {
		key += fmt.Sprintf(":%v", a)
	}
	return key
}

// RateLimitUserKey 已登录用户的写接口限流键。
func RateLimitUserKey(userID uint) string {
	return fmt.Sprintf("storefront:rate_limit:user:%d", userID)
}

// RateLimitIPKey 匿名请求按 IP 限流。
func RateLimitIPKey(ip string) string {
	return fmt.Sprintf("storefront:rate_limit:ip:%s", ip)
}

// NotifiedKey 标记某事件的通知是否已发出。
func NotifiedKey(eventID string) string {
	return fmt.Sprintf("storefront:notified:%s", eventID)
}
