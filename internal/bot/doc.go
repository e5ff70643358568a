// Package bot реализует движок автоответчика поверх словаря (XML-файл с
// правилами, командами и вотчерами). Движок не знает про сеть: исходящая
// сторона подаётся через Transport, листинги каталогов через Lister, описания
// файлов через Describer.
//
// Что делает бот:
//   - на каждое событие чата (say, me, личка, broadcast, join/leave) ищет
//     первое подходящее правило и отвечает одним случайным output;
//   - разбирает команды с префиксом "!" (и встроенные !stop, !start, !reload,
//     !sleep, !nick, !status, !help) с проверкой прав по нику и логину;
//   - следит за каталогами (вотчеры): новые файлы анонсируются в чат или
//     отдельным тредом на доске, опционально с описанием от сервиса.
//
// Жизненный цикл:
//   - New(path, Options{...}) загружает словарь (ошибка фатальна);
//   - после подключения транспорта вызвать SubscribeWatchers;
//   - входящие события отдавать в Dispatch, уведомления о каталогах в
//     DirectoryChanged;
//   - опционально запустить PollWatchers в отдельной горутине.
//
// Reload перечитывает словарь на лету: при ошибке остаются старые правила.
//
// Dispatch и DirectoryChanged могут ждать ответа сервера (листинг при
// reload), поэтому их нельзя вызывать прямо из колбэков чтения транспорта.
//
// Пример:
//
//	b, err := bot.New("wirebot.xml", bot.Options{Transport: tr, Lister: tr})
//	if err != nil {
//		log.Fatal(err)
//	}
//	b.SubscribeWatchers(ctx)
//	for ev := range events {
//		b.Dispatch(ctx, ev)
//	}
package bot
