package connection_manager

import "sync"

// dispatcher 在单个 goroutine 中按顺序执行排队的调用，队列无界，回调中可继续投递任务而不阻塞
type dispatcher struct {
	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *dispatcher) post(task func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.tasks = append(d.tasks, task)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for range d.wake {
		for {
			d.mu.Lock()
			if len(d.tasks) == 0 {
				stopped := d.stopped
				d.mu.Unlock()
				if stopped {
					return
				}
				break
			}
			task := d.tasks[0]
			d.tasks[0] = nil
			d.tasks = d.tasks[1:]
			d.mu.Unlock()

			task()
		}
	}
}

// flush 等待调用前投递的任务全部执行完
func (d *dispatcher) flush() {
	ch := make(chan struct{})
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return
	}
	d.post(func() { close(ch) })
	select {
	case <-ch:
	case <-d.done:
	}
}

// stop 执行完剩余任务后退出
func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}
