package di

import (
	"go.uber.org/dig"
)

// NewContainer 创建依赖注入容器并注册全部提供者
func NewContainer(infra Infrastructure) (*dig.Container, error) {
	container := dig.New()
	if err := RegisterProviders(container, infra); err != nil {
		return nil, err
	}
	return container, nil
}
