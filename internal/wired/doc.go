// Package wired реализует WebSocket-клиент чат-сервера для бота. Каждый кадр это
// бинарное сообщение protobuf (structpb.Struct вида {"name": ..., "fields": {...}}).
// Клиент подключается, логинится, заходит в публичный чат, автоматически
// реконнектится и предоставляет высокоуровневые методы:
//
//   - Say, Me, PrivateMessage, Broadcast, AddThread;
//   - SetNick, SetStatus, SetIdle, SetIcon;
//   - SubscribeDirectory/UnsubscribeDirectory, ListDirectory.
//
// События (колбэки поля структуры):
//   - OnConnecting, OnConnected, OnMessage, OnDisconnected, OnError,
//     OnDirectoryChanged.
//
// Колбэки вызываются из readLoop. Внутри них нельзя ждать ответов сервера
// (ListDirectory, RequestWait): ответ читает тот же readLoop.
//
// Пример:
//
//	c := wired.New(wired.Config{Hostname: "localhost", Port: 4871, Login: "guest", Nick: "WireBot"}, log)
//	c.OnMessage = func(m *wired.Message) { fmt.Println(m.Name) }
//	if err := c.Connect(ctx); err != nil { log.Fatal(err) }
//	defer c.Disconnect()
//
//	_ = c.Say("Hello chat!")
package wired
