package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sports-manager/backend/config"
	"sports-manager/backend/pkg/jwt"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd 运维签发访问令牌（用户体系由外部身份服务维护）
func newRootCmd(out io.Writer) *cobra.Command {
	var (
		configPath string
		userID     string
		role       string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:          "tokengen",
		Short:        "签发分配服务的 JWT 访问令牌",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch role {
			case jwt.RoleAdmin, jwt.RoleAssignor, jwt.RoleViewer:
			default:
				return fmt.Errorf("未知角色 %q（可选 admin / assignor / viewer）", role)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			token, err := jwt.NewManager(&cfg.Auth).GenerateAccessToken(userID, role, ttl)
			if err != nil {
				return fmt.Errorf("签发令牌失败: %w", err)
			}
			fmt.Fprintln(out, token)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "配置文件路径")
	cmd.Flags().StringVar(&userID, "user", "", "令牌主体（用户或服务 ID）")
	cmd.Flags().StringVar(&role, "role", jwt.RoleAssignor, "角色：admin / assignor / viewer")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "有效期，0 表示使用 auth.access_token_ttl")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
