package redis

import "fmt"

// StockKey 统一约定秒杀券库存键名。
func StockKey(voucherID int64) string {
	return fmt.Sprintf("hmdp:seckill:stock:%d", voucherID)
}

// OrderUserSetKey 记录某张券已下单的用户集合，用于一人一单判断。
func OrderUserSetKey(voucherID int64) string {
	return fmt.Sprintf("hmdp:seckill:order:%d", voucherID)
}

// ShopKey 商铺缓存键名。
func ShopKey(shopID int64) string {
	return fmt.Sprintf("hmdp:cache:shop:%d", shopID)
}

// VoucherKey 秒杀券信息缓存键名。
func VoucherKey(voucherID int64) string {
	return fmt.Sprintf("hmdp:cache:voucher:%d", voucherID)
}

// LockKey 分布式锁键名，name 由调用方约定（如 "order:7"、"shop:1"）。
func LockKey(name string) string {
	return "hmdp:lock:" + name
}

// IncrKey 全局 ID 自增计数器键名，按业务前缀和日期分段。
func IncrKey(prefix, day string) string {
	return fmt.Sprintf("hmdp:icr:%s:%s", prefix, day)
}
