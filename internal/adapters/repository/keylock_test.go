package repository_test

import (
	"sync"
	"testing"

	"github.com/okian/feedrank/internal/adapters/repository"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKeyedLocker(t *testing.T) {
	Convey("Given a keyed locker", t, func() {
		l := repository.NewKeyedLocker(4)

		Convey("When many goroutines do read-modify-write on one key", func() {
			var wg sync.WaitGroup
			counter := 0
			for range 64 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range 100 {
						unlock := l.Lock("video-1")
						counter++
						unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then no update is lost", func() {
				So(counter, ShouldEqual, 6400)
			})
		})

		Convey("When a stripe is held", func() {
			unlock := l.Lock("a")
			acquired := make(chan struct{})
			go func() {
				u := l.Lock("a")
				close(acquired)
				u()
			}()

			Convey("Then the same key waits until it is released", func() {
				select {
				case <-acquired:
					So("acquired early", ShouldBeEmpty)
				default:
				}
				unlock()
				<-acquired
			})
		})

		Convey("Then a non-positive stripe count uses the default", func() {
			So(func() { repository.NewKeyedLocker(0).Lock("x")() }, ShouldNotPanic)
		})
	})
}
