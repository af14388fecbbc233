package main

import (
	"fmt"
	"os"

	"bondrotor/utils"
)

// 把明文凭据加密为可写入 config.yaml 的密文
// 运行时设置相同的 BONDROTOR_SECRET 环境变量即可解密
func main() {
	if len(os.Args) < 2 {
		fmt.Println("用法: go run tools/encrypt_credential.go <明文密码>")
		fmt.Println("加密密钥取自环境变量 BONDROTOR_SECRET")
		os.Exit(1)
	}

	passphrase := os.Getenv("BONDROTOR_SECRET")
	if passphrase == "" {
		fmt.Println("错误: 未设置环境变量 BONDROTOR_SECRET")
		os.Exit(1)
	}

	encrypted, err := utils.EncryptCredential(os.Args[1], passphrase)
	if err != nil {
		fmt.Printf("错误: 加密失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ 加密完成，把下面的密文填入 config.yaml 的 encrypted_password 字段:")
	fmt.Println(encrypted)
}
