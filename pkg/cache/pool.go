package cache

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Pool 是缓存重建专用的固定大小工作池。
// 独立于请求处理线程：回源慢查询只拖慢重建任务，不会阻塞读请求。
// 进程启动时创建一次，关闭时 Close，组件间以引用传递。
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

// NewPool 启动 workers 个常驻协程，backlog 为任务队列容量。
func NewPool(workers, backlog int) *Pool {
	p := &Pool{tasks: make(chan func(), backlog)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.invoke(task)
	}
}

func (p *Pool) invoke(task func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("cache rebuild task panicked")
		}
	}()
	task()
}

// Submit 提交后台任务，不等待完成。队列已满时返回 false，由调用方放弃本次任务。
func (p *Pool) Submit(task func()) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Close 停止接收新任务并等待在途任务完成。
func (p *Pool) Close() {
	p.once.Do(func() { close(p.tasks) })
	p.wg.Wait()
}
