package models

// ReadStatus 通知已读状态
type ReadStatus int8

const (
	ReadStatusUnread ReadStatus = 0
	ReadStatusRead   ReadStatus = 1
)

// 令牌声明中的参与者角色
const (
	RoleCustomer = "customer"
	RoleProvider = "provider"
)
