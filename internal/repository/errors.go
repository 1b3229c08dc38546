package repository

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
)

// ErrNotFound 记录不存在（只读解析路径返回，不在热路径抛异常）
var ErrNotFound = errors.New("not found")

// IsNotFound 判断是否记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation 判断是否唯一约束冲突（流标识插入竞态时出现）
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// IsTransient 判断是否瞬态存储错误（连接中断、串行化冲突、死锁）
// 接收管道对瞬态错误做有限次立即重试；查询审计写入器无限退避重试
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08xxx 连接异常；40001 串行化失败；40P01 死锁
		if pqErr.Code.Class() == "08" {
			return true
		}
		switch pqErr.Code {
		case "40001", "40P01":
			return true
		}
	}
	return false
}
