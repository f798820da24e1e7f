package router

import (
	"strings"

	"github.com/beego/beego/v2/server/web"
)

// RouteGroup 路由组
type RouteGroup struct {
	prefix   string
	parent   *RouteGroup
	children []*RouteGroup
	routes   []Route
}

// Route 路由定义
type Route struct {
	Method     string
	Path       string
	Handler    string
	Comment    string
	Controller web.ControllerInterface
}

// NewRouteGroup 创建路由组
func NewRouteGroup(prefix string) *RouteGroup {
	return &RouteGroup{
		prefix:   prefix,
		children: make([]*RouteGroup, 0),
		routes:   make([]Route, 0),
	}
}

// Group 创建子路由组
func (rg *RouteGroup) Group(prefix string) *RouteGroup {
	child := NewRouteGroup(prefix)
	child.parent = rg
	rg.children = append(rg.children, child)
	return child
}

// Add 添加路由
func (rg *RouteGroup) Add(method, path string, controller web.ControllerInterface, handler string, comment ...string) *RouteGroup {
	route := Route{
		Method:     method,
		Path:       path,
		Handler:    handler,
		Controller: controller,
	}
	if len(comment) > 0 {
		route.Comment = comment[0]
	}
	rg.routes = append(rg.routes, route)
	return rg
}

// GET 添加GET路由
func (rg *RouteGroup) GET(path string, controller web.ControllerInterface, handler string, comment ...string) *RouteGroup {
	return rg.Add("GET", path, controller, handler, comment...)
}

// POST 添加POST路由
func (rg *RouteGroup) POST(path string, controller web.ControllerInterface, handler string, comment ...string) *RouteGroup {
	return rg.Add("POST", path, controller, handler, comment...)
}

// Register 注册路由组到Beego
// 同一路径下具体路由须先于参数路由添加
func (rg *RouteGroup) Register(handlers *web.ControllerRegister) {
	rg.register(handlers, "")
}

func (rg *RouteGroup) register(handlers *web.ControllerRegister, pathPrefix string) {
	currentPrefix := pathPrefix + rg.prefix
	for _, route := range rg.routes {
		mapping := strings.ToLower(route.Method) + ":" + route.Handler
		handlers.Add(currentPrefix+route.Path, route.Controller, web.WithRouterMethods(route.Controller, mapping))
	}
	for _, child := range rg.children {
		child.register(handlers, currentPrefix)
	}
}

// GetAllRoutes 获取所有路由定义（用于调试和文档）
func (rg *RouteGroup) GetAllRoutes() []RouteDefinition {
	var routes []RouteDefinition
	rg.collectRoutes("", &routes)
	return routes
}

func (rg *RouteGroup) collectRoutes(prefix string, routes *[]RouteDefinition) {
	currentPrefix := prefix + rg.prefix

	for _, route := range rg.routes {
		*routes = append(*routes, RouteDefinition{
			Method:  route.Method,
			Path:    currentPrefix + route.Path,
			Handler: route.Handler,
			Comment: route.Comment,
		})
	}

	for _, child := range rg.children {
		child.collectRoutes(currentPrefix, routes)
	}
}

// RouteDefinition 路由定义
type RouteDefinition struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Handler string `json:"handler"`
	Comment string `json:"comment,omitempty"`
}
