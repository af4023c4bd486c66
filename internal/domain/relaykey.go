package domain

import (
	"errors"
	"strconv"
)

// ErrInvalidRelayKey 表示中继房间标识不是规范的房间 ID。
var ErrInvalidRelayKey = errors.New("room must be the numeric meeting room id")

// RelayKey 返回房间在信令中继和在线状态中使用的标识，即十进制房间 ID。
func RelayKey(roomID uint) string {
	return strconv.FormatUint(uint64(roomID), 10)
}

// ParseRelayKey 只接受规范形式的十进制房间 ID：非零、无符号、无前导零。
// 清理任务按 RelayKey(room.ID) 查询在线状态，其他写法的标识会让在线的参与者被当作掉线。
func ParseRelayKey(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, strconv.IntSize)
	if err != nil || id == 0 || strconv.FormatUint(id, 10) != s {
		return 0, ErrInvalidRelayKey
	}
	return uint(id), nil
}
