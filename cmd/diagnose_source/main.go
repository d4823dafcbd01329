package main

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

// 会话源数据库诊断工具
// 检查会话库 schema 是否符合预期，并输出会话与消息的基本统计
func main() {
	if len(os.Args) < 2 {
		fmt.Println("用法:")
		fmt.Println("  diagnose_source <会话库路径>                  - 诊断会话源数据库")
		fmt.Println("  diagnose_source <会话库路径> <会话 ID>        - 查看单个会话详情")
		fmt.Println("")
		fmt.Println("示例:")
		fmt.Println("  diagnose_source ~/.driftwatch/conversations.db")
		os.Exit(1)
	}

	dbPath := os.Args[1]
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Printf("错误: 无法访问数据库文件: %v\n", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		fmt.Printf("错误: 打开数据库失败: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if len(os.Args) >= 3 {
		diagnoseConversation(db, os.Args[2])
		return
	}
	diagnoseDatabase(db, dbPath)
}

// diagnoseDatabase 输出库级诊断信息
func diagnoseDatabase(db *sql.DB, dbPath string) {
	fmt.Printf("=== 会话源数据库诊断 ===\n")
	fmt.Printf("路径: %s\n\n", dbPath)

	// 检查必需的表
	for _, table := range []string{"conversations", "messages"} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err == sql.ErrNoRows {
			fmt.Printf("[缺失] 表 %s 不存在\n", table)
			continue
		}
		if err != nil {
			fmt.Printf("[错误] 查询表 %s 失败: %v\n", table, err)
			continue
		}
		fmt.Printf("[正常] 表 %s 存在\n", table)
	}
	fmt.Println()

	var convCount, msgCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&convCount); err != nil {
		fmt.Printf("错误: 统计会话数失败: %v\n", err)
		return
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&msgCount); err != nil {
		fmt.Printf("错误: 统计消息数失败: %v\n", err)
		return
	}
	fmt.Printf("会话数: %d\n", convCount)
	fmt.Printf("消息数: %d\n", msgCount)

	// 消息数最多的前 10 个会话
	rows, err := db.Query(`
		SELECT c.id, c.updated_at, COUNT(m.idx) AS msg_count
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY msg_count DESC
		LIMIT 10
	`)
	if err != nil {
		fmt.Printf("错误: 查询会话列表失败: %v\n", err)
		return
	}
	defer rows.Close()

	fmt.Println("\n消息最多的会话:")
	for rows.Next() {
		var id string
		var updatedAt int64
		var count int
		if err := rows.Scan(&id, &updatedAt, &count); err != nil {
			fmt.Printf("错误: 读取行失败: %v\n", err)
			return
		}
		fmt.Printf("  %s  消息数=%d  更新于=%s\n",
			id, count, time.Unix(updatedAt, 0).Format("2006-01-02 15:04:05"))
	}
}

// diagnoseConversation 输出单个会话的消息明细
func diagnoseConversation(db *sql.DB, conversationID string) {
	fmt.Printf("=== 会话诊断: %s ===\n\n", conversationID)

	rows, err := db.Query(`
		SELECT idx, role, text, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY idx ASC
	`, conversationID)
	if err != nil {
		fmt.Printf("错误: 查询消息失败: %v\n", err)
		return
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var idx int
		var role, text string
		var timestamp int64
		if err := rows.Scan(&idx, &role, &text, &timestamp); err != nil {
			fmt.Printf("错误: 读取消息失败: %v\n", err)
			return
		}
		preview := text
		if len([]rune(preview)) > 80 {
			preview = string([]rune(preview)[:80]) + "..."
		}
		fmt.Printf("[%3d] %-10s %s\n", idx, role, preview)
		count++
	}
	if count == 0 {
		fmt.Println("该会话不存在或没有消息")
		return
	}
	fmt.Printf("\n共 %d 条消息\n", count)
}
