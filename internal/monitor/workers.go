package monitor

import (
	"context"
	"sync"

	"riskguard/internal/models"
)

// accountBatch - записи одного биржевого аккаунта.
// Аккаунт является единицей параллелизма: его записи обрабатываются
// последовательно, чтобы не плодить конкурентные сессии к одной бирже.
type accountBatch struct {
	accountID int
	records   []*models.MonitoringRecord
}

// groupByAccount разбивает снимок на пачки по биржевым аккаунтам,
// сохраняя порядок первого появления аккаунта и порядок записей внутри него.
func groupByAccount(records []*models.MonitoringRecord) []accountBatch {
	index := make(map[int]int)
	batches := make([]accountBatch, 0)

	for _, rec := range records {
		i, ok := index[rec.ExchangeAccountID]
		if !ok {
			i = len(batches)
			index[rec.ExchangeAccountID] = i
			batches = append(batches, accountBatch{accountID: rec.ExchangeAccountID})
		}
		batches[i].records = append(batches[i].records, rec)
	}

	return batches
}

// runBatches обрабатывает пачки с ограниченным параллелизмом.
//
// Отмена контекста проверяется между записями, а не внутри обработки:
// начатая запись доводится до конца, чтобы не бросить закрытие на полпути.
func runBatches(ctx context.Context, batches []accountBatch, workers int, process func(*models.MonitoringRecord)) {
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, batch := range batches {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		default:
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(b accountBatch) {
			defer wg.Done()
			defer func() { <-sem }()

			for _, rec := range b.records {
				select {
				case <-ctx.Done():
					return
				default:
				}
				process(rec)
			}
		}(batch)
	}

	wg.Wait()
}
